package graph

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomworks/loom/types"
)

// Store is the serialized graph repository. A single mutex orders all
// structural mutations.
type Store struct {
	mu     sync.Mutex
	nodes  map[string]*types.Node
	edges  map[string]*types.Edge
	logger *zap.Logger
}

// NewStore creates an empty graph store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		nodes:  make(map[string]*types.Node),
		edges:  make(map[string]*types.Edge),
		logger: logger.With(zap.String("component", "graph_store")),
	}
}

// AddNode inserts a node. An empty ID is assigned; a duplicate ID or a
// missing parent is rejected before any mutation.
func (s *Store) AddNode(n types.Node) (types.Node, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.ID]; exists {
		return types.Node{}, types.Errorf(types.ErrDuplicateID, "node %s already exists", n.ID)
	}
	if n.ParentID != "" {
		if _, ok := s.nodes[n.ParentID]; !ok {
			return types.Node{}, types.Errorf(types.ErrInvalidParent, "parent %s not found", n.ParentID)
		}
	}

	stored := cloneNode(n)
	s.nodes[n.ID] = &stored
	s.logger.Debug("node added", zap.String("node_id", n.ID), zap.String("kind", n.Kind))
	return cloneNode(stored), nil
}

// Node returns a copy of the node, if present.
func (s *Store) Node(id string) (types.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return types.Node{}, false
	}
	return cloneNode(*n), true
}

// Nodes returns copies of all nodes.
func (s *Store) Nodes() []types.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, cloneNode(*n))
	}
	return out
}

// ChildrenOf returns copies of the direct children of a node.
func (s *Store) ChildrenOf(id string) []types.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Node
	for _, n := range s.nodes {
		if n.ParentID == id {
			out = append(out, cloneNode(*n))
		}
	}
	return out
}

// Removal is what one RemoveNode call took out of the store: the node, its
// descendant closure, and every incident edge. It is sufficient to build
// the inverse operation for undo.
type Removal struct {
	Nodes []types.Node
	Edges []types.Edge
}

// RemoveNode deletes a node, all its descendants, and every edge touching
// any of them. The closure is computed before anything is mutated, so a
// failed lookup can never leave a partial delete behind.
func (s *Store) RemoveNode(id string) (Removal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return Removal{}, types.Errorf(types.ErrNodeNotFound, "node %s not found", id)
	}

	// Descendant closure over the containment relation.
	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for _, n := range s.nodes {
			if n.ParentID != "" && doomed[n.ParentID] && !doomed[n.ID] {
				doomed[n.ID] = true
				changed = true
			}
		}
	}

	var removal Removal
	for nid := range doomed {
		removal.Nodes = append(removal.Nodes, cloneNode(*s.nodes[nid]))
	}
	for _, e := range s.edges {
		if doomed[e.Source] || doomed[e.Target] {
			removal.Edges = append(removal.Edges, *e)
		}
	}

	for _, e := range removal.Edges {
		delete(s.edges, e.ID)
	}
	for nid := range doomed {
		delete(s.nodes, nid)
	}

	s.logger.Debug("node removed",
		zap.String("node_id", id),
		zap.Int("cascaded_nodes", len(removal.Nodes)-1),
		zap.Int("cascaded_edges", len(removal.Edges)))
	return removal, nil
}

// AddEdge inserts an edge. Both endpoints must exist and the edge must not
// close a cycle; the store enforces acyclicity itself so no caller path can
// corrupt the topological order. Handle semantics belong to the Validator.
func (s *Store) AddEdge(e types.Edge) (types.Edge, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.edges[e.ID]; exists {
		return types.Edge{}, types.Errorf(types.ErrDuplicateID, "edge %s already exists", e.ID)
	}
	if _, ok := s.nodes[e.Source]; !ok {
		return types.Edge{}, types.Errorf(types.ErrNodeNotFound, "source %s not found", e.Source)
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return types.Edge{}, types.Errorf(types.ErrNodeNotFound, "target %s not found", e.Target)
	}
	if e.Source == e.Target || s.reachableLocked(e.Target, e.Source, map[string]bool{}) {
		return types.Edge{}, types.NewError(types.ErrWouldCreateCycle, "would create a cycle")
	}

	stored := e
	s.edges[e.ID] = &stored
	return e, nil
}

// RemoveEdge deletes an edge and returns it for inverse bookkeeping.
func (s *Store) RemoveEdge(id string) (types.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[id]
	if !ok {
		return types.Edge{}, types.Errorf(types.ErrNodeNotFound, "edge %s not found", id)
	}
	removed := *e
	delete(s.edges, id)
	return removed, nil
}

// Edges returns copies of all edges.
func (s *Store) Edges() []types.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, *e)
	}
	return out
}

// EdgesInto returns edges whose target is the given node.
func (s *Store) EdgesInto(id string) []types.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Edge
	for _, e := range s.edges {
		if e.Target == id {
			out = append(out, *e)
		}
	}
	return out
}

// EdgesOutOf returns edges whose source is the given node.
func (s *Store) EdgesOutOf(id string) []types.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Edge
	for _, e := range s.edges {
		if e.Source == id {
			out = append(out, *e)
		}
	}
	return out
}

// Reachable reports whether `to` can be reached from `from` by following
// edges in their direction. Depth-first.
func (s *Store) Reachable(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reachableLocked(from, to, map[string]bool{})
}

func (s *Store) reachableLocked(from, to string, seen map[string]bool) bool {
	if from == to {
		return true
	}
	seen[from] = true
	for _, e := range s.edges {
		if e.Source == from && !seen[e.Target] {
			if s.reachableLocked(e.Target, to, seen) {
				return true
			}
		}
	}
	return false
}

// TopologicalOrder returns all node IDs so that every parent precedes its
// children and every edge source precedes its target. Kahn's algorithm;
// an error is returned if the combined relation has a cycle, which a
// validated store never produces.
func (s *Store) TopologicalOrder() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indegree := make(map[string]int, len(s.nodes))
	succ := make(map[string][]string, len(s.nodes))
	for id := range s.nodes {
		indegree[id] = 0
	}
	addConstraint := func(before, after string) {
		succ[before] = append(succ[before], after)
		indegree[after]++
	}
	for id, n := range s.nodes {
		if n.ParentID != "" {
			addConstraint(n.ParentID, id)
		}
	}
	for _, e := range s.edges {
		addConstraint(e.Source, e.Target)
	}

	queue := make([]string, 0, len(s.nodes))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(s.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range succ[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != len(s.nodes) {
		return nil, types.NewError(types.ErrWouldCreateCycle, "graph contains a cycle")
	}
	return order, nil
}

// ApplyPatch merges a declarative patch into a node's data. Reserved keys
// address typed fields; everything else lands in the extra payload. This
// is the single write path for behavior hook output.
func (s *Store) ApplyPatch(targetID string, ops map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[targetID]
	if !ok {
		return types.Errorf(types.ErrNodeNotFound, "node %s not found", targetID)
	}

	for k, v := range ops {
		switch k {
		case "state":
			switch state := v.(type) {
			case types.ExecutionState:
				n.Data.State = state
			case string:
				n.Data.State = types.ExecutionState(state)
			}
		case "stateMessage":
			if msg, ok := v.(string); ok {
				n.Data.StateMessage = msg
			}
		case "collapsed":
			if c, ok := v.(bool); ok {
				n.Data.Collapsed = c
			}
		case "targetId":
			if id, ok := v.(string); ok {
				n.Data.TargetID = id
			}
		case "assetId":
			if id, ok := v.(string); ok {
				n.Data.AssetID = id
			}
		case "recipeId":
			if id, ok := v.(string); ok {
				n.Data.RecipeID = id
			}
		case "provenance":
			switch p := v.(type) {
			case *types.Provenance:
				n.Data.Provenance = p
			case types.Provenance:
				n.Data.Provenance = &p
			}
		case "position":
			if pos, ok := v.(types.Position); ok {
				n.Position = pos
			}
		default:
			if n.Data.Extra == nil {
				n.Data.Extra = make(map[string]any)
			}
			if v == nil {
				delete(n.Data.Extra, k)
			} else {
				n.Data.Extra[k] = v
			}
		}
	}
	return nil
}

// Relink points a shortcut node at a new target: TargetID is updated and
// every edge whose target is the shortcut is rewired so its source becomes
// the new target.
func (s *Store) Relink(shortcutID, newTargetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[shortcutID]
	if !ok {
		return types.Errorf(types.ErrNodeNotFound, "node %s not found", shortcutID)
	}
	if _, ok := s.nodes[newTargetID]; !ok {
		return types.Errorf(types.ErrNodeNotFound, "relink target %s not found", newTargetID)
	}

	n.Data.TargetID = newTargetID
	for _, e := range s.edges {
		if e.Target == shortcutID {
			e.Source = newTargetID
		}
	}
	return nil
}

// cloneNode copies a node deeply enough that callers cannot reach store
// internals through shared maps or provenance pointers.
func cloneNode(n types.Node) types.Node {
	if n.Data.Extra != nil {
		extra := make(map[string]any, len(n.Data.Extra))
		for k, v := range n.Data.Extra {
			extra[k] = v
		}
		n.Data.Extra = extra
	}
	if n.Data.Provenance != nil {
		p := *n.Data.Provenance
		p.Sources = append([]types.ProvenanceSource(nil), n.Data.Provenance.Sources...)
		if n.Data.Provenance.ParamsSnapshot != nil {
			params := make(map[string]any, len(n.Data.Provenance.ParamsSnapshot))
			for k, v := range n.Data.Provenance.ParamsSnapshot {
				params[k] = v
			}
			p.ParamsSnapshot = params
		}
		n.Data.Provenance = &p
	}
	return n
}
