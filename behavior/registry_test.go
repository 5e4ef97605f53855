package behavior

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/types"
)

func TestRegistry_UnregisteredKindIsNoOp(t *testing.T) {
	r := NewRegistry()
	b := r.ForKind("never-registered")

	ctx := Context{Node: types.Node{ID: "n", Kind: "never-registered"}}
	assert.Nil(t, b.Create(ctx))
	assert.Nil(t, b.Delete(ctx))
	assert.Nil(t, b.Collapse(ctx, true))
	assert.Nil(t, b.ChildAdd(ctx, types.Node{}))
	assert.Nil(t, b.ChildRemove(ctx, "c"))
	assert.Nil(t, b.Layout(ctx))
	assert.Nil(t, b.Connect(ctx, types.Edge{}))
	assert.Nil(t, b.Items(ctx))
	assert.False(t, b.AcceptsConnections())
	assert.False(t, b.CanMergeItems())

	_, ok := b.Output(ctx)
	assert.False(t, ok)

	// Default merge appends.
	merged := b.Merge(ctx, []any{"a"}, []any{"b", "c"})
	assert.Equal(t, []any{"a", "b", "c"}, merged)
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	r := NewRegistry()
	r.Register("gallery", Behavior{
		OnCreate: func(ctx Context) []Patch {
			return []Patch{{TargetID: ctx.Node.ID, Ops: map[string]any{"state": types.StateIdle}}}
		},
		CanConnect: func(_ Context, e types.Edge) error {
			if e.TargetHandle == "forbidden" {
				return errors.New("nope")
			}
			return nil
		},
		MergeItems: func(_ Context, existing, incoming []any) []any {
			// Prepend: newest first.
			return append(append([]any{}, incoming...), existing...)
		},
	})

	b := r.ForKind("gallery")
	assert.True(t, b.AcceptsConnections())
	assert.ElementsMatch(t, []string{"gallery"}, r.Kinds())

	patches := b.Create(Context{Node: types.Node{ID: "g1"}})
	require.Len(t, patches, 1)
	assert.Equal(t, "g1", patches[0].TargetID)

	assert.Error(t, b.CanConnect(Context{}, types.Edge{TargetHandle: "forbidden"}))
	assert.NoError(t, b.CanConnect(Context{}, types.Edge{TargetHandle: "items"}))

	merged := b.Merge(Context{}, []any{"old"}, []any{"new"})
	assert.Equal(t, []any{"new", "old"}, merged)
}

// stubApplier collects applied patches.
type stubApplier struct {
	applied []string
	fail    bool
}

func (s *stubApplier) ApplyPatch(targetID string, ops map[string]any) error {
	if s.fail {
		return errors.New("apply failed")
	}
	s.applied = append(s.applied, targetID)
	return nil
}

func TestApply(t *testing.T) {
	applier := &stubApplier{}
	err := Apply(applier, []Patch{
		{TargetID: "a", Ops: map[string]any{"state": "idle"}},
		{TargetID: "skip", Ops: nil},
		{TargetID: "b", Ops: map[string]any{"collapsed": true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, applier.applied)

	assert.Error(t, Apply(&stubApplier{fail: true}, []Patch{{TargetID: "x", Ops: map[string]any{"k": 1}}}))
}
