package graph

import (
	"go.uber.org/zap"

	"github.com/loomworks/loom/behavior"
	"github.com/loomworks/loom/types"
)

// Validator vets candidate edges before they reach the store. Arity and
// cycle checks live here; kind-specific semantics are delegated to the
// target kind's behavior.
type Validator struct {
	graph     *Store
	behaviors *behavior.Registry
	assets    behavior.AssetReader
	logger    *zap.Logger
}

// NewValidator creates a connection validator over the given stores.
func NewValidator(g *Store, behaviors *behavior.Registry, assets behavior.AssetReader, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		graph:     g,
		behaviors: behaviors,
		assets:    assets,
		logger:    logger.With(zap.String("component", "connection_validator")),
	}
}

// CheckConnection decides whether a candidate edge may be added. The checks
// run in a fixed order: cycle detection first, unconditionally; then
// semantic handles bypass the arity and kind checks; then handle arity and
// the target kind's CanConnect hook. Kinds that declare no hook accept
// nothing on non-semantic handles.
func (v *Validator) CheckConnection(e types.Edge) error {
	if _, ok := v.graph.Node(e.Source); !ok {
		return types.Errorf(types.ErrNodeNotFound, "source %s not found", e.Source)
	}
	target, ok := v.graph.Node(e.Target)
	if !ok {
		return types.Errorf(types.ErrNodeNotFound, "target %s not found", e.Target)
	}

	// A new source->target edge closes a loop exactly when source is
	// already reachable from target. Acyclicity is unconditional; semantic
	// handles get no bypass here.
	if e.Source == e.Target || v.graph.Reachable(e.Target, e.Source) {
		return types.NewError(types.ErrWouldCreateCycle, "would create a cycle")
	}

	if types.IsSemanticHandle(e.TargetHandle) {
		return nil
	}

	for _, existing := range v.graph.EdgesInto(e.Target) {
		if existing.TargetHandle == e.TargetHandle {
			return types.Errorf(types.ErrHandleOccupied,
				"handle %q already has a connection", e.TargetHandle)
		}
	}

	b := v.behaviors.ForKind(target.Kind)
	if !b.AcceptsConnections() {
		return types.Errorf(types.ErrConnectionRefused,
			"node kind %q does not accept connections", target.Kind)
	}
	ctx := behavior.Context{Node: target, Graph: v.graph, Assets: v.assets}
	if err := b.CanConnect(ctx, e); err != nil {
		return types.NewError(types.ErrConnectionRefused, "connection refused").WithCause(err)
	}
	return nil
}

// Connect validates the edge, commits it, and applies the target kind's
// OnConnect patches through the reducer. Nothing is mutated when
// validation fails.
func (v *Validator) Connect(e types.Edge) (types.Edge, error) {
	if err := v.CheckConnection(e); err != nil {
		v.logger.Debug("connection rejected",
			zap.String("source", e.Source),
			zap.String("target", e.Target),
			zap.String("handle", e.TargetHandle),
			zap.Error(err))
		return types.Edge{}, err
	}

	added, err := v.graph.AddEdge(e)
	if err != nil {
		return types.Edge{}, err
	}

	target, _ := v.graph.Node(e.Target)
	b := v.behaviors.ForKind(target.Kind)
	ctx := behavior.Context{Node: target, Graph: v.graph, Assets: v.assets}
	if err := behavior.Apply(v.graph, b.Connect(ctx, added)); err != nil {
		return added, err
	}
	return added, nil
}
