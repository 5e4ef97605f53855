package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// newTemplateExecutor builds the template executor: plain {{key}}
// interpolation of resolved inputs into a declared template string.
func newTemplateExecutor(cfg recipe.ExecutorConfig) (Executor, error) {
	tmpl := cfg.String("template")
	if tmpl == "" {
		return nil, types.NewError(types.ErrManifestInvalid, "template executor declares no template")
	}
	return func(_ context.Context, ec Context) Result {
		return Ok(interpolate(tmpl, ec.Inputs))
	}, nil
}

// interpolate replaces {{key}} placeholders with stringified input values.
// Dot paths descend into nested maps. Unresolvable placeholders become the
// empty string.
func interpolate(tmpl string, inputs map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		return stringify(resolvePath(path, inputs))
	})
}

// resolvePath walks a dot-notation path through nested maps.
func resolvePath(path string, vars map[string]any) any {
	var current any = vars
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// stringify renders an input value for interpolation. Scalars render
// naturally; composite values render as compact JSON.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", val)
	}
}
