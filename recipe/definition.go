package recipe

import (
	"github.com/loomworks/loom/types"
)

// Field describes one input of a recipe.
type Field struct {
	// Key is the input name the executor resolves values by.
	Key string `yaml:"key" json:"key"`
	// Label is the human-readable caption. Defaults to Key when empty.
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	// Type is the expected value shape: "text", "number", "boolean",
	// "object", "array", "image".
	Type string `yaml:"type" json:"type"`
	// Widget hints how the field should be edited ("textarea", "select",
	// "slider"). Ignored by the execution core.
	Widget string `yaml:"widget,omitempty" json:"widget,omitempty"`
	// Default is used when neither a static value nor a dynamic
	// connection supplies the field.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`
	// Required fields must resolve to a non-empty value before the
	// executor runs.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`
	// RequiredKeys constrains object-typed fields: every listed key must
	// be present in the resolved value.
	RequiredKeys []string `yaml:"requiredKeys,omitempty" json:"requiredKeys,omitempty"`
	// Connection, when set, allows the field to be fed by an incoming
	// edge instead of a static value.
	Connection *ConnectionSpec `yaml:"connection,omitempty" json:"connection,omitempty"`
}

// ConnectionSpec declares which node kinds may connect into a field handle.
type ConnectionSpec struct {
	// Kinds lists accepted source node kinds. Empty means any kind.
	Kinds []string `yaml:"kinds,omitempty" json:"kinds,omitempty"`
}

// OutputSpec is the template for the node a successful run writes into.
type OutputSpec struct {
	// Kind of the node to create or merge into, e.g. "text" or "gallery".
	Kind string `yaml:"kind" json:"kind"`
	// Name for the created node's asset. Defaults to the recipe name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Config is passed through to the created asset's config.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// ExecutorConfig is the executor block of a manifest. The "type" entry
// selects the executor kind; the remaining entries are kind-specific options
// interpreted at dispatch time.
type ExecutorConfig map[string]any

// Kind returns the declared executor kind, or "" when absent.
func (c ExecutorConfig) Kind() string {
	s, _ := c["type"].(string)
	return s
}

// String returns the option under key as a string, or "" when absent or not
// a string.
func (c ExecutorConfig) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Map returns the option under key as a nested map, or nil.
func (c ExecutorConfig) Map(key string) map[string]any {
	m, _ := c[key].(map[string]any)
	return m
}

// Definition is a fully resolved recipe: mixins merged, dialect normalized.
type Definition struct {
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name" json:"name"`
	Category string         `yaml:"category,omitempty" json:"category,omitempty"`
	Icon     string         `yaml:"icon,omitempty" json:"icon,omitempty"`
	Inputs   []Field        `yaml:"input,omitempty" json:"input,omitempty"`
	Output   *OutputSpec    `yaml:"output,omitempty" json:"output,omitempty"`
	Executor ExecutorConfig `yaml:"executor" json:"executor"`
}

// FieldByKey returns the input field with the given key.
func (d Definition) FieldByKey(key string) (Field, bool) {
	for _, f := range d.Inputs {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks the structural requirements a resolved definition must
// meet before registration.
func (d Definition) Validate() error {
	if d.ID == "" {
		return types.NewError(types.ErrManifestInvalid, "recipe is missing an id")
	}
	if d.Name == "" {
		return types.Errorf(types.ErrManifestInvalid, "recipe %q is missing a name", d.ID)
	}
	if d.Executor.Kind() == "" {
		return types.Errorf(types.ErrManifestInvalid, "recipe %q declares no executor type", d.ID)
	}
	for i, f := range d.Inputs {
		if f.Key == "" {
			return types.Errorf(types.ErrManifestInvalid, "recipe %q: input %d has no key", d.ID, i)
		}
	}
	return nil
}

// mergeFields overlays fields onto base by key. Overlapping keys keep the
// base ordering but take the overlay's descriptor; new keys append in order.
func mergeFields(base, overlay []Field) []Field {
	merged := make([]Field, len(base))
	copy(merged, base)
	index := make(map[string]int, len(merged))
	for i, f := range merged {
		index[f.Key] = i
	}
	for _, f := range overlay {
		if i, ok := index[f.Key]; ok {
			merged[i] = f
			continue
		}
		index[f.Key] = len(merged)
		merged = append(merged, f)
	}
	return merged
}
