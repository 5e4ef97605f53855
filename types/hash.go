package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint is the lowercase hex SHA-256 digest of an asset value's
// canonical serialization.
type Fingerprint string

// HashValue computes the content fingerprint of a value. The value is first
// normalized through JSON (so structurally equal inputs converge on one
// representation) and then serialized canonically with sorted object keys,
// making the digest independent of map iteration order.
func HashValue(value any) (Fingerprint, error) {
	normalized, err := normalize(value)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := writeCanonical(&sb, normalized); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return Fingerprint(hex.EncodeToString(sum[:])), nil
}

// MustHashValue is HashValue for values already known to be JSON-shaped.
// It panics on non-serializable input and is intended for literals in tests.
func MustHashValue(value any) Fingerprint {
	fp, err := HashValue(value)
	if err != nil {
		panic(err)
	}
	return fp
}

// normalize round-trips a value through encoding/json so that equal values
// of different Go types (int vs float64, struct vs map) canonicalize to the
// same tree of string/float64/bool/nil/map/slice.
func normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("serialize value for hashing: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize value for hashing: %w", err)
	}
	return out, nil
}

// writeCanonical emits a normalized value as deterministic JSON: object keys
// sorted, no insignificant whitespace, numbers in their shortest form.
func writeCanonical(sb *strings.Builder, value any) error {
	switch v := value.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite number %v is not hashable", v)
		}
		// Integral floats print without exponent or fraction so that the
		// digest of 2 matches the digest of 2.0.
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			sb.WriteString(strconv.FormatInt(int64(v), 10))
		} else {
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	case string:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		sb.Write(data)
	case []any:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeCanonical(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyData, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(keyData)
			sb.WriteByte(':')
			if err := writeCanonical(sb, v[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type %T after normalization", value)
	}
	return nil
}
