package types

// ExecutionState tracks where a node is in its run lifecycle.
type ExecutionState string

const (
	// StateIdle means the node is at rest with no pending work.
	StateIdle ExecutionState = "idle"
	// StateRunning means a recipe is currently executing on the node.
	StateRunning ExecutionState = "running"
	// StateSuccess means the last run completed; the node returns to idle
	// after a display delay.
	StateSuccess ExecutionState = "success"
	// StateError means the last run failed; the message is kept on the node.
	StateError ExecutionState = "error"
	// StateStale means a recorded provenance source no longer matches the
	// live fingerprint of its asset.
	StateStale ExecutionState = "stale"
)

// Reserved semantic handles. Edges into these are structural wiring
// (run triggers, produced collections, shortcut origins) and bypass
// field-level connection rules.
const (
	HandleTrigger = "trigger"
	HandleProduct = "product"
	HandleOrigin  = "origin"
)

// Position is a node's canvas coordinate. The core does not interpret it
// beyond placing generated nodes relative to their source.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the payload a node carries on the canvas.
type NodeData struct {
	// AssetID links the node to its owned asset, if any.
	AssetID string `json:"assetId,omitempty"`
	// RecipeID is set on generator nodes bound to a recipe.
	RecipeID string `json:"recipeId,omitempty"`
	// TargetID is set on shortcut nodes and points at the referenced node.
	TargetID string `json:"targetId,omitempty"`
	// State is the node's execution state.
	State ExecutionState `json:"state,omitempty"`
	// StateMessage carries the error message while State is error.
	StateMessage string `json:"stateMessage,omitempty"`
	// Provenance records the sources a generated node was computed from.
	Provenance *Provenance `json:"provenance,omitempty"`
	// Collapsed marks a container node folded on the canvas.
	Collapsed bool `json:"collapsed,omitempty"`
	// Extra holds kind-specific payload the core passes through untouched.
	Extra map[string]any `json:"extra,omitempty"`
}

// Node is a canvas graph node.
type Node struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	ParentID string   `json:"parentId,omitempty"`
	Position Position `json:"position"`
	Width    float64  `json:"width,omitempty"`
	Height   float64  `json:"height,omitempty"`
	Data     NodeData `json:"data"`
}

// Edge is a directed connection between two nodes, optionally anchored to
// named handles on either end.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// IsSemanticHandle reports whether a target handle is one of the reserved
// structural handles that accept connections unconditionally.
func IsSemanticHandle(handle string) bool {
	switch handle {
	case HandleTrigger, HandleProduct, HandleOrigin:
		return true
	}
	return false
}

// Provenance records what a generated node was computed from: the recipe,
// the fingerprints of every distinct upstream contributor at run time, and
// a snapshot of the resolved parameters.
type Provenance struct {
	RecipeID       string             `json:"recipeId"`
	GeneratedAt    int64              `json:"generatedAt"`
	Sources        []ProvenanceSource `json:"sources"`
	ParamsSnapshot map[string]any     `json:"paramsSnapshot,omitempty"`
}

// ProvenanceSource pins one upstream contributor. NodeHash drives the
// automated stale check; NodeVersion is kept for human-readable history.
type ProvenanceSource struct {
	NodeID      string      `json:"nodeId"`
	NodeVersion int         `json:"nodeVersion"`
	NodeHash    Fingerprint `json:"nodeHash,omitempty"`
	Slot        string      `json:"slot,omitempty"`
}
