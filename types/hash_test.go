package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHashValue_Deterministic(t *testing.T) {
	h1, err := HashValue("Hello World")
	require.NoError(t, err)
	h2, err := HashValue("Hello World")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, string(h1), 64)

	h3, err := HashValue("Hello UNIVERSE")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestHashValue_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"alpha": 1, "beta": "two", "gamma": []any{3, 4}}
	b := map[string]any{"gamma": []any{3, 4}, "beta": "two", "alpha": 1}

	ha, err := HashValue(a)
	require.NoError(t, err)
	hb, err := HashValue(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHashValue_NumericNormalization(t *testing.T) {
	// int and the equivalent float must hash identically after the JSON
	// round trip, or a reloaded project would flag everything stale.
	hi, err := HashValue(map[string]any{"n": 2})
	require.NoError(t, err)
	hf, err := HashValue(map[string]any{"n": 2.0})
	require.NoError(t, err)
	assert.Equal(t, hi, hf)
}

func TestHashValue_StructAndMapConverge(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	hs, err := HashValue(payload{Name: "x", Count: 3})
	require.NoError(t, err)
	hm, err := HashValue(map[string]any{"count": 3, "name": "x"})
	require.NoError(t, err)
	assert.Equal(t, hs, hm)
}

func TestHashValue_RejectsUnserializable(t *testing.T) {
	_, err := HashValue(make(chan int))
	assert.Error(t, err)
}

func TestHashValue_PermutationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 1, 8, rapid.ID[string]).Draw(t, "keys")
		value := map[string]any{}
		for _, k := range keys {
			value[k] = rapid.OneOf(
				rapid.Float64Range(-1e6, 1e6).AsAny(),
				rapid.String().AsAny(),
				rapid.Bool().AsAny(),
			).Draw(t, "v-"+k)
		}

		h1, err := HashValue(value)
		if err != nil {
			t.Fatalf("hash failed: %v", err)
		}

		// Rebuild the map in a different insertion order.
		shuffled := map[string]any{}
		for i := len(keys) - 1; i >= 0; i-- {
			shuffled[keys[i]] = value[keys[i]]
		}
		h2, err := HashValue(shuffled)
		if err != nil {
			t.Fatalf("hash failed: %v", err)
		}
		if h1 != h2 {
			t.Fatalf("hash not stable under key reordering: %s != %s", h1, h2)
		}
	})
}
