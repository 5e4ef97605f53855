package types

// AssetKind discriminates the asset value union.
type AssetKind string

const (
	// AssetText holds a plain string value.
	AssetText AssetKind = "text"
	// AssetImage holds an image reference (src, dimensions, thumbnail).
	AssetImage AssetKind = "image"
	// AssetRecord holds a keyed object value.
	AssetRecord AssetKind = "record"
	// AssetArray holds an ordered list of item values.
	AssetArray AssetKind = "array"
)

// AssetSource records how an asset came into existence.
type AssetSource string

const (
	// SourceUser marks content authored directly by the user.
	SourceUser AssetSource = "user"
	// SourceGenerated marks content produced by a recipe run.
	SourceGenerated AssetSource = "generated"
	// SourceImported marks content brought in from outside the project.
	SourceImported AssetSource = "imported"
)

// SysMeta carries system-managed asset metadata.
type SysMeta struct {
	Name      string      `json:"name"`
	CreatedAt int64       `json:"createdAt"`
	UpdatedAt int64       `json:"updatedAt"`
	Source    AssetSource `json:"source"`
}

// AssetConfig is the optional schema/format configuration attached to an
// asset. A nil map means the asset carries no configuration.
type AssetConfig map[string]any

// ValueMeta is the derived summary of an asset value (length, item count,
// image dimensions). It is recomputed on every value change and never set
// directly by callers.
type ValueMeta map[string]any

// Asset is a typed content payload owned by a graph node. Value is
// variant-typed by Kind: string for text, map[string]any for image and
// record, []any for array. Hash is the canonical fingerprint of Value and
// is recomputed on every mutation; Version counts mutations.
type Asset struct {
	ID        string      `json:"id"`
	Kind      AssetKind   `json:"kind"`
	Value     any         `json:"value"`
	ValueMeta ValueMeta   `json:"valueMeta,omitempty"`
	Config    AssetConfig `json:"config,omitempty"`
	Sys       SysMeta     `json:"sys"`
	Hash      Fingerprint `json:"hash"`
	Version   int         `json:"version"`
}

// Text returns the string value of a text asset, or "" for other kinds.
func (a *Asset) Text() string {
	if s, ok := a.Value.(string); ok {
		return s
	}
	return ""
}

// Record returns the object value of a record or image asset, or nil.
func (a *Asset) Record() map[string]any {
	if m, ok := a.Value.(map[string]any); ok {
		return m
	}
	return nil
}

// Items returns the item list of an array asset, or nil.
func (a *Asset) Items() []any {
	if items, ok := a.Value.([]any); ok {
		return items
	}
	return nil
}

// DeriveValueMeta computes the summary metadata for a value of the given kind.
func DeriveValueMeta(kind AssetKind, value any) ValueMeta {
	meta := ValueMeta{}
	switch kind {
	case AssetText:
		if s, ok := value.(string); ok {
			meta["length"] = len(s)
		}
	case AssetArray:
		if items, ok := value.([]any); ok {
			meta["count"] = len(items)
		}
	case AssetRecord:
		if m, ok := value.(map[string]any); ok {
			meta["keys"] = len(m)
		}
	case AssetImage:
		if m, ok := value.(map[string]any); ok {
			for _, k := range []string{"width", "height", "thumbnail"} {
				if v, ok := m[k]; ok {
					meta[k] = v
				}
			}
		}
	}
	return meta
}
