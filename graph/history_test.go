package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/loom/types"
)

// recordAddNode executes an AddNode and records its inverse pair.
func recordAddNode(t *testing.T, s *Store, h *History, n types.Node) {
	t.Helper()
	added, err := s.AddNode(n)
	require.NoError(t, err)
	h.Record(Command{
		Name: "add node",
		Do: func() error {
			_, err := s.AddNode(added)
			return err
		},
		Undo: func() error {
			_, err := s.RemoveNode(added.ID)
			return err
		},
	})
}

func TestHistory_UndoRedoPair(t *testing.T) {
	s := NewStore(zap.NewNop())
	h := NewHistory()

	recordAddNode(t, s, h, types.Node{ID: "n1", Kind: "text"})
	require.True(t, h.CanUndo())

	require.NoError(t, h.Undo())
	_, ok := s.Node("n1")
	assert.False(t, ok)
	assert.True(t, h.CanRedo())

	require.NoError(t, h.Redo())
	_, ok = s.Node("n1")
	assert.True(t, ok)
}

func TestHistory_PauseCoalesces(t *testing.T) {
	s := NewStore(zap.NewNop())
	h := NewHistory()

	h.Pause("create chain")
	recordAddNode(t, s, h, types.Node{ID: "a", Kind: "text"})
	recordAddNode(t, s, h, types.Node{ID: "b", Kind: "text"})
	recordAddNode(t, s, h, types.Node{ID: "c", Kind: "text"})
	h.Resume()

	assert.Equal(t, 1, h.Depth())

	require.NoError(t, h.Undo())
	for _, id := range []string{"a", "b", "c"} {
		_, ok := s.Node(id)
		assert.False(t, ok, id)
	}

	require.NoError(t, h.Redo())
	for _, id := range []string{"a", "b", "c"} {
		_, ok := s.Node(id)
		assert.True(t, ok, id)
	}
}

func TestHistory_EmptyBatchDiscarded(t *testing.T) {
	h := NewHistory()
	h.Pause("noop gesture")
	h.Resume()
	assert.Equal(t, 0, h.Depth())
}

func TestHistory_NewRecordClearsRedo(t *testing.T) {
	s := NewStore(zap.NewNop())
	h := NewHistory()

	recordAddNode(t, s, h, types.Node{ID: "a", Kind: "text"})
	require.NoError(t, h.Undo())
	require.True(t, h.CanRedo())

	recordAddNode(t, s, h, types.Node{ID: "b", Kind: "text"})
	assert.False(t, h.CanRedo())
}

func TestHistory_EmptyStacks(t *testing.T) {
	h := NewHistory()
	assert.True(t, types.IsCode(h.Undo(), types.ErrInvalidTransition))
	assert.True(t, types.IsCode(h.Redo(), types.ErrInvalidTransition))
}
