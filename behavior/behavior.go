// Package behavior implements capability-based dispatch for node kinds.
// A kind registers an optional set of pure lifecycle/connection hooks
// instead of participating in a type hierarchy. Hooks never mutate shared
// state: they return declarative patches that a single reducer applies.
package behavior

import (
	"github.com/loomworks/loom/types"
)

// GraphReader is the read-only graph view handed to hooks.
type GraphReader interface {
	Node(id string) (types.Node, bool)
	ChildrenOf(id string) []types.Node
	EdgesInto(id string) []types.Edge
	EdgesOutOf(id string) []types.Edge
}

// AssetReader is the read-only asset view handed to hooks.
type AssetReader interface {
	Get(id string) (types.Asset, bool)
}

// Context is the immutable input to a hook invocation.
type Context struct {
	Node   types.Node
	Graph  GraphReader
	Assets AssetReader
}

// Patch is a declarative state change targeting one node. Ops keys address
// node data fields ("state", "stateMessage", "collapsed", "targetId",
// "assetId"); any other key is merged into the node's extra payload.
type Patch struct {
	TargetID string
	Ops      map[string]any
}

// Behavior is the optional hook set for a node kind. Nil hooks are no-ops;
// the zero Behavior is the safe default for unregistered kinds.
type Behavior struct {
	// OnCreate runs after the node is added to the graph.
	OnCreate func(ctx Context) []Patch
	// OnDelete runs before the node (and its descendants) are removed.
	OnDelete func(ctx Context) []Patch
	// OnCollapse runs when a container node is folded or unfolded.
	OnCollapse func(ctx Context, collapsed bool) []Patch
	// OnChildAdd runs after a child is parented under the node.
	OnChildAdd func(ctx Context, child types.Node) []Patch
	// OnChildRemove runs after a child is removed from the node.
	OnChildRemove func(ctx Context, childID string) []Patch
	// OnLayout lets a container reposition its children declaratively.
	OnLayout func(ctx Context) []Patch
	// CanConnect vets a proposed edge into the node's non-semantic handle.
	// A nil return accepts the connection.
	CanConnect func(ctx Context, edge types.Edge) error
	// OnConnect runs after an edge into the node is committed.
	OnConnect func(ctx Context, edge types.Edge) []Patch
	// ResolveOutput produces the node's dynamic output value for input
	// resolution, overriding the owned asset's raw value.
	ResolveOutput func(ctx Context) (any, bool)
	// GetItems exposes a collection kind's current items.
	GetItems func(ctx Context) []any
	// MergeItems decides how generated items join a collection kind
	// (append, prepend, dedup).
	MergeItems func(ctx Context, existing, incoming []any) []any
}

// AcceptsConnections reports whether the kind declared a CanConnect hook.
// Kinds without one reject all non-semantic connections.
func (b Behavior) AcceptsConnections() bool {
	return b.CanConnect != nil
}

// CanMergeItems reports whether the kind behaves as a collection: it
// declared item hooks, so generated results can merge into it instead of
// spawning a new node.
func (b Behavior) CanMergeItems() bool {
	return b.GetItems != nil || b.MergeItems != nil
}

// Create invokes OnCreate if declared.
func (b Behavior) Create(ctx Context) []Patch {
	if b.OnCreate == nil {
		return nil
	}
	return b.OnCreate(ctx)
}

// Delete invokes OnDelete if declared.
func (b Behavior) Delete(ctx Context) []Patch {
	if b.OnDelete == nil {
		return nil
	}
	return b.OnDelete(ctx)
}

// Collapse invokes OnCollapse if declared.
func (b Behavior) Collapse(ctx Context, collapsed bool) []Patch {
	if b.OnCollapse == nil {
		return nil
	}
	return b.OnCollapse(ctx, collapsed)
}

// ChildAdd invokes OnChildAdd if declared.
func (b Behavior) ChildAdd(ctx Context, child types.Node) []Patch {
	if b.OnChildAdd == nil {
		return nil
	}
	return b.OnChildAdd(ctx, child)
}

// ChildRemove invokes OnChildRemove if declared.
func (b Behavior) ChildRemove(ctx Context, childID string) []Patch {
	if b.OnChildRemove == nil {
		return nil
	}
	return b.OnChildRemove(ctx, childID)
}

// Layout invokes OnLayout if declared.
func (b Behavior) Layout(ctx Context) []Patch {
	if b.OnLayout == nil {
		return nil
	}
	return b.OnLayout(ctx)
}

// Connect invokes OnConnect if declared.
func (b Behavior) Connect(ctx Context, edge types.Edge) []Patch {
	if b.OnConnect == nil {
		return nil
	}
	return b.OnConnect(ctx, edge)
}

// Output invokes ResolveOutput if declared.
func (b Behavior) Output(ctx Context) (any, bool) {
	if b.ResolveOutput == nil {
		return nil, false
	}
	return b.ResolveOutput(ctx)
}

// Items invokes GetItems if declared.
func (b Behavior) Items(ctx Context) []any {
	if b.GetItems == nil {
		return nil
	}
	return b.GetItems(ctx)
}

// Merge invokes MergeItems if declared, defaulting to append.
func (b Behavior) Merge(ctx Context, existing, incoming []any) []any {
	if b.MergeItems == nil {
		return append(existing, incoming...)
	}
	return b.MergeItems(ctx, existing, incoming)
}
