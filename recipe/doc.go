// Package recipe defines declarative transformation manifests and the
// registry that holds their parsed form.
//
// A recipe manifest describes a transformation step: its input fields, the
// executor that performs the work, and an optional template for the node the
// result should be written to. Manifests are authored as YAML or JSON files
// and come in two dialects. The legacy dialect composes shared field groups
// (mixins) by key, later sources overriding earlier ones. The modern dialect
// is self-contained, with an explicit model/prompt/output block and no mixins.
package recipe
