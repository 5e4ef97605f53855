package graph

import (
	"go.uber.org/zap"

	"github.com/loomworks/loom/types"
)

// Editor performs structural edits through the store while recording each
// edit's inverse on a History. Edits made directly on the Store bypass the
// undo stack; interactive surfaces go through the Editor.
type Editor struct {
	graph   *Store
	history *History
	logger  *zap.Logger
}

// NewEditor creates an Editor recording onto history.
func NewEditor(g *Store, history *History, logger *zap.Logger) *Editor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Editor{
		graph:   g,
		history: history,
		logger:  logger.With(zap.String("component", "graph_editor")),
	}
}

// History exposes the underlying undo stack.
func (ed *Editor) History() *History {
	return ed.history
}

// Begin opens a coalescing batch; every edit until End undoes as one step.
func (ed *Editor) Begin(name string) {
	ed.history.Pause(name)
}

// End closes the open batch.
func (ed *Editor) End() {
	ed.history.Resume()
}

// AddNode inserts a node and records its removal as the inverse.
func (ed *Editor) AddNode(n types.Node) (types.Node, error) {
	added, err := ed.graph.AddNode(n)
	if err != nil {
		return types.Node{}, err
	}
	ed.history.Record(Command{
		Name: "add node",
		Do: func() error {
			_, err := ed.graph.AddNode(added)
			return err
		},
		Undo: func() error {
			_, err := ed.graph.RemoveNode(added.ID)
			return err
		},
	})
	return added, nil
}

// RemoveNode deletes a node with its descendant closure and incident edges,
// recording the full removal so one undo restores all of it.
func (ed *Editor) RemoveNode(id string) (Removal, error) {
	removal, err := ed.graph.RemoveNode(id)
	if err != nil {
		return Removal{}, err
	}
	ed.history.Record(Command{
		Name: "remove node",
		Do: func() error {
			_, err := ed.graph.RemoveNode(id)
			return err
		},
		Undo: func() error {
			return ed.restore(removal)
		},
	})
	return removal, nil
}

// AddEdge inserts an edge and records its removal as the inverse.
func (ed *Editor) AddEdge(e types.Edge) (types.Edge, error) {
	added, err := ed.graph.AddEdge(e)
	if err != nil {
		return types.Edge{}, err
	}
	ed.history.Record(Command{
		Name: "add edge",
		Do: func() error {
			_, err := ed.graph.AddEdge(added)
			return err
		},
		Undo: func() error {
			_, err := ed.graph.RemoveEdge(added.ID)
			return err
		},
	})
	return added, nil
}

// RemoveEdge deletes an edge and records its re-insertion as the inverse.
func (ed *Editor) RemoveEdge(id string) (types.Edge, error) {
	removed, err := ed.graph.RemoveEdge(id)
	if err != nil {
		return types.Edge{}, err
	}
	ed.history.Record(Command{
		Name: "remove edge",
		Do: func() error {
			_, err := ed.graph.RemoveEdge(id)
			return err
		},
		Undo: func() error {
			_, err := ed.graph.AddEdge(removed)
			return err
		},
	})
	return removed, nil
}

// restore re-inserts a removal: nodes first, parents before children, then
// the edges. Removal.Nodes carries no ordering, so insertion loops until a
// pass makes no progress.
func (ed *Editor) restore(removal Removal) error {
	pending := append([]types.Node(nil), removal.Nodes...)
	for len(pending) > 0 {
		var deferred []types.Node
		for _, n := range pending {
			parentKnown := n.ParentID == ""
			if !parentKnown {
				_, parentKnown = ed.graph.Node(n.ParentID)
			}
			if !parentKnown {
				deferred = append(deferred, n)
				continue
			}
			if _, err := ed.graph.AddNode(n); err != nil {
				return err
			}
		}
		if len(deferred) == len(pending) {
			return types.Errorf(types.ErrInvalidParent, "cannot restore %d nodes with missing parents", len(deferred))
		}
		pending = deferred
	}
	for _, e := range removal.Edges {
		if _, err := ed.graph.AddEdge(e); err != nil {
			return err
		}
	}
	return nil
}
