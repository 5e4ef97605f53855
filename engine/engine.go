package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/asset"
	"github.com/loomworks/loom/behavior"
	"github.com/loomworks/loom/executor"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

// Engine executes recipes against graph nodes.
type Engine struct {
	graph      *graph.Store
	assets     *asset.Store
	behaviors  *behavior.Registry
	recipes    *recipe.Registry
	dispatcher *executor.Dispatcher
	collector  *metrics.Collector
	logger     *zap.Logger

	credentials llm.Credentials

	// displayDelay is how long a node shows success before settling back
	// to idle. Zero keeps the success state.
	displayDelay time.Duration

	now func() int64

	mu      sync.Mutex
	running map[string]bool
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithDisplayDelay sets the success display delay.
func WithDisplayDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.displayDelay = d }
}

// WithCredentials sets the model execution service credentials attached to
// every run.
func WithCredentials(c llm.Credentials) EngineOption {
	return func(e *Engine) { e.credentials = c }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.collector = c }
}

// WithClock overrides the millisecond clock, for tests.
func WithClock(now func() int64) EngineOption {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given stores and registries.
func New(g *graph.Store, assets *asset.Store, behaviors *behavior.Registry, recipes *recipe.Registry, dispatcher *executor.Dispatcher, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		graph:      g,
		assets:     assets,
		behaviors:  behaviors,
		recipes:    recipes,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "engine")),
		now:        func() int64 { return time.Now().UnixMilli() },
		running:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunReport describes the outcome of one run.
type RunReport struct {
	// NodeID is the node the recipe ran on.
	NodeID string
	// Created lists the nodes the run produced, in creation order.
	Created []types.Node
	// Merged lists existing collection nodes the run merged items into.
	Merged []string
	// Data is the executor's raw result data.
	Data any
}

// Run executes a recipe on a node. It resolves inputs, validates them,
// invokes the executor, and applies the result to the graph. The executed
// node transitions idle -> running -> success or error; a second run on a
// node that is still running is rejected.
func (e *Engine) Run(ctx context.Context, nodeID, recipeID string) (*RunReport, error) {
	def, err := e.recipes.Get(recipeID)
	if err != nil {
		return nil, err
	}
	node, ok := e.graph.Node(nodeID)
	if !ok {
		return nil, types.Errorf(types.ErrNodeNotFound, "node %q does not exist", nodeID)
	}

	e.mu.Lock()
	if e.running[nodeID] {
		e.mu.Unlock()
		return nil, types.Errorf(types.ErrExecutionConflict, "node %q is already running", nodeID)
	}
	e.running[nodeID] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, nodeID)
		e.mu.Unlock()
	}()

	exec, err := e.dispatcher.Dispatch(def.Executor)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.setState(nodeID, types.StateRunning, "")

	inputs, sources := e.resolveInputs(node, def)
	if err := validateInputs(def, inputs); err != nil {
		e.finish(nodeID, recipeID, start, err)
		return nil, err
	}

	res := exec(ctx, executor.Context{
		Inputs:      inputs,
		NodeID:      nodeID,
		Node:        node,
		Recipe:      def,
		Credentials: e.credentials,
	})
	if !res.Success {
		err := res.Err
		if err == nil {
			err = types.NewError(types.ErrExecutorFailed, "executor reported failure")
		}
		e.finish(nodeID, recipeID, start, err)
		return nil, err
	}

	prov := e.stampProvenance(def, sources, inputs)
	report := &RunReport{NodeID: nodeID, Data: res.Data}
	if len(res.CreateNodes) > 0 {
		err = e.applyCreateNodes(node, def, res.CreateNodes, prov, report)
	} else {
		err = e.applyResult(node, def, res.Data, prov, report)
	}
	if err != nil {
		e.finish(nodeID, recipeID, start, err)
		return nil, err
	}

	e.finish(nodeID, recipeID, start, nil)
	return report, nil
}

// RunRequest names one node/recipe pair for a batch run.
type RunRequest struct {
	NodeID   string
	RecipeID string
}

// RunBatch executes several runs concurrently, at most limit at a time
// (limit <= 0 means unbounded). The first failure cancels the rest.
func (e *Engine) RunBatch(ctx context.Context, reqs []RunRequest, limit int) ([]*RunReport, error) {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	reports := make([]*RunReport, len(reqs))
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			report, err := e.Run(ctx, req.NodeID, req.RecipeID)
			if err != nil {
				return fmt.Errorf("run %s on %s: %w", req.RecipeID, req.NodeID, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// finish records metrics and settles the node's final state.
func (e *Engine) finish(nodeID, recipeID string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if e.collector != nil {
		e.collector.RecordExecution(recipeID, status, time.Since(start))
	}
	if err != nil {
		e.logger.Warn("run failed",
			zap.String("node", nodeID),
			zap.String("recipe", recipeID),
			zap.Error(err))
		e.setState(nodeID, types.StateError, err.Error())
		return
	}
	e.logger.Info("run finished",
		zap.String("node", nodeID),
		zap.String("recipe", recipeID),
		zap.Duration("elapsed", time.Since(start)))
	e.setState(nodeID, types.StateSuccess, "")
	if e.displayDelay > 0 {
		time.AfterFunc(e.displayDelay, func() {
			if n, ok := e.graph.Node(nodeID); ok && n.Data.State == types.StateSuccess {
				e.setState(nodeID, types.StateIdle, "")
			}
		})
	}
}

func (e *Engine) setState(nodeID string, state types.ExecutionState, message string) {
	_ = e.graph.ApplyPatch(nodeID, map[string]any{
		"state":        state,
		"stateMessage": message,
	})
}

// contributor is one distinct upstream input to a run.
type contributor struct {
	nodeID string
	slot   string
}

// resolveInputs layers the effective inputs: field defaults first, then the
// node's own stored values, then dynamic upstream connections. Later layers
// win. It also returns the distinct contributors for provenance.
func (e *Engine) resolveInputs(node types.Node, def recipe.Definition) (map[string]any, []contributor) {
	inputs := make(map[string]any, len(def.Inputs))
	for _, f := range def.Inputs {
		if f.Default != nil {
			inputs[f.Key] = f.Default
		}
	}

	var contributors []contributor
	primary := primarySlot(def)

	// Static layer: the node's own asset. A record value fills matching
	// field keys; the whole value feeds the primary slot.
	if node.Data.AssetID != "" {
		if a, ok := e.assets.Get(node.Data.AssetID); ok {
			if record, isRecord := a.Value.(map[string]any); isRecord {
				for _, f := range def.Inputs {
					if v, ok := record[f.Key]; ok {
						inputs[f.Key] = v
					}
				}
			}
			if primary != "" {
				if _, filled := inputs[primary]; !filled {
					inputs[primary] = a.Value
				}
			}
			contributors = append(contributors, contributor{nodeID: node.ID, slot: primary})
		}
	}

	// Dynamic layer: incoming edges whose target handle names a field.
	for _, edge := range e.graph.EdgesInto(node.ID) {
		if types.IsSemanticHandle(edge.TargetHandle) {
			continue
		}
		if _, declared := def.FieldByKey(edge.TargetHandle); !declared {
			continue
		}
		value, sourceID, ok := e.resolveUpstream(edge.Source)
		if !ok {
			continue
		}
		inputs[edge.TargetHandle] = value
		contributors = append(contributors, contributor{nodeID: sourceID, slot: edge.TargetHandle})
	}
	return inputs, contributors
}

// resolveUpstream produces the output value of a source node: the kind's
// resolveOutput hook when declared, a shortcut's target asset when the node
// is a reference, otherwise the node's own asset value. The returned id is
// the node whose fingerprint provenance should record.
func (e *Engine) resolveUpstream(sourceID string) (any, string, bool) {
	node, ok := e.graph.Node(sourceID)
	if !ok {
		return nil, "", false
	}
	b := e.behaviors.ForKind(node.Kind)
	if v, ok := b.Output(behavior.Context{Node: node, Graph: e.graph, Assets: e.assets}); ok {
		return v, node.ID, true
	}
	if node.Data.TargetID != "" {
		return e.resolveUpstream(node.Data.TargetID)
	}
	if node.Data.AssetID == "" {
		return nil, "", false
	}
	a, ok := e.assets.Get(node.Data.AssetID)
	if !ok {
		return nil, "", false
	}
	return a.Value, node.ID, true
}

// primarySlot is the field the executed node's own value feeds: the first
// connection-enabled field, or the first field when none declares a
// connection.
func primarySlot(def recipe.Definition) string {
	for _, f := range def.Inputs {
		if f.Connection != nil {
			return f.Key
		}
	}
	if len(def.Inputs) > 0 {
		return def.Inputs[0].Key
	}
	return ""
}

// validateInputs enforces required fields and requiredKeys constraints
// before the executor runs.
func validateInputs(def recipe.Definition, inputs map[string]any) error {
	for _, f := range def.Inputs {
		v, present := inputs[f.Key]
		if f.Required && (!present || isEmpty(v)) {
			return types.Errorf(types.ErrMissingInput, "required input %q is missing or empty", f.Key)
		}
		if !present || len(f.RequiredKeys) == 0 {
			continue
		}
		record, ok := v.(map[string]any)
		if !ok {
			return types.Errorf(types.ErrBadInputShape, "input %q must be an object", f.Key)
		}
		for _, key := range f.RequiredKeys {
			if _, ok := record[key]; !ok {
				return types.Errorf(types.ErrBadInputShape, "input %q is missing key %q", f.Key, key)
			}
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// stampProvenance records where a result came from: one source entry per
// distinct contributor with its fingerprint at run time, plus a snapshot of
// the resolved parameters.
func (e *Engine) stampProvenance(def recipe.Definition, contributors []contributor, inputs map[string]any) *types.Provenance {
	prov := &types.Provenance{
		RecipeID:       def.ID,
		GeneratedAt:    e.now(),
		ParamsSnapshot: inputs,
	}
	seen := make(map[string]bool, len(contributors))
	for _, c := range contributors {
		if seen[c.nodeID] {
			continue
		}
		seen[c.nodeID] = true
		node, ok := e.graph.Node(c.nodeID)
		if !ok || node.Data.AssetID == "" {
			continue
		}
		a, ok := e.assets.Get(node.Data.AssetID)
		if !ok {
			continue
		}
		prov.Sources = append(prov.Sources, types.ProvenanceSource{
			NodeID:      c.nodeID,
			NodeVersion: a.Version,
			NodeHash:    a.Hash,
			Slot:        c.slot,
		})
	}
	return prov
}

// applyResult writes a single-output run back to the graph. When the node
// already feeds a collection via its product handle and the collection kind
// declares merge hooks, the result's items merge in place. Otherwise a new
// generated node is created; a stale previous output is left untouched.
func (e *Engine) applyResult(node types.Node, def recipe.Definition, data any, prov *types.Provenance, report *RunReport) error {
	if productID, ok := e.productNode(node.ID); ok {
		if e.mergeIntoCollection(productID, data, prov) {
			report.Merged = append(report.Merged, productID)
			return nil
		}
	}

	kind, name, config := outputShape(def)
	created, err := e.createGeneratedNode(node, kind, name, data, config, prov, nil)
	if err != nil {
		return err
	}
	report.Created = append(report.Created, created)
	return nil
}

// applyCreateNodes applies an executor's node-creation requests: merge into
// a connected collection when possible, otherwise create a chain of new
// nodes below the executed node.
func (e *Engine) applyCreateNodes(node types.Node, def recipe.Definition, specs []executor.NodeSpec, prov *types.Provenance, report *RunReport) error {
	if productID, ok := e.productNode(node.ID); ok {
		incoming := make([]any, 0, len(specs))
		for _, spec := range specs {
			incoming = append(incoming, spec.Data)
		}
		if e.mergeItems(productID, incoming, prov) {
			report.Merged = append(report.Merged, productID)
			return nil
		}
	}

	for i, spec := range specs {
		name := def.Name
		if len(specs) > 1 {
			name = fmt.Sprintf("%s %d", def.Name, i+1)
		}
		created, err := e.createGeneratedNode(node, spec.Kind, name, spec.Data, spec.Config, prov, spec.Position)
		if err != nil {
			return err
		}
		report.Created = append(report.Created, created)
	}
	return nil
}

// productNode finds the node connected to id's product handle, if any.
func (e *Engine) productNode(id string) (string, bool) {
	for _, edge := range e.graph.EdgesOutOf(id) {
		if edge.TargetHandle == types.HandleProduct {
			return edge.Target, true
		}
	}
	return "", false
}

// mergeIntoCollection merges a gallery-shaped result into an existing
// collection node. Returns false when the target kind declares no merge
// hooks.
func (e *Engine) mergeIntoCollection(productID string, data any, prov *types.Provenance) bool {
	items := resultItems(data)
	if items == nil {
		return false
	}
	return e.mergeItems(productID, items, prov)
}

func (e *Engine) mergeItems(productID string, incoming []any, prov *types.Provenance) bool {
	node, ok := e.graph.Node(productID)
	if !ok {
		return false
	}
	b := e.behaviors.ForKind(node.Kind)
	if !b.CanMergeItems() {
		return false
	}
	bctx := behavior.Context{Node: node, Graph: e.graph, Assets: e.assets}
	merged := b.Merge(bctx, b.Items(bctx), incoming)

	if node.Data.AssetID != "" {
		if a, ok := e.assets.Get(node.Data.AssetID); ok {
			value := a.Value
			if record, isRecord := value.(map[string]any); isRecord {
				patched := make(map[string]any, len(record)+1)
				for k, v := range record {
					patched[k] = v
				}
				patched["items"] = merged
				value = patched
			} else {
				value = map[string]any{"items": merged}
			}
			if err := e.assets.SetValue(a.ID, value); err != nil {
				return false
			}
		}
	}
	_ = e.graph.ApplyPatch(productID, map[string]any{
		"provenance": prov,
		"state":      types.StateSuccess,
	})
	return true
}

// resultItems extracts mergeable items from a result payload.
func resultItems(data any) []any {
	switch v := data.(type) {
	case []any:
		return v
	case map[string]any:
		if items, ok := v["items"].([]any); ok {
			return items
		}
	}
	return nil
}

// outputShape reads the recipe's output template.
func outputShape(def recipe.Definition) (kind, name string, config map[string]any) {
	kind = "text"
	name = def.Name
	if def.Output != nil {
		if def.Output.Kind != "" {
			kind = def.Output.Kind
		}
		if def.Output.Name != "" {
			name = def.Output.Name
		}
		config = def.Output.Config
	}
	return kind, name, config
}

// createGeneratedNode creates the asset and node for a run's output, wires
// the product edge from the executed node, applies the kind's onCreate
// patches, and stamps provenance.
func (e *Engine) createGeneratedNode(parent types.Node, kind, name string, data any, config map[string]any, prov *types.Provenance, offset *types.Position) (types.Node, error) {
	a, err := e.assets.Create(assetKindFor(kind, data), data, asset.CreateMeta{
		Name:   name,
		Source: types.SourceGenerated,
		Config: config,
	})
	if err != nil {
		return types.Node{}, err
	}

	pos := types.Position{X: parent.Position.X, Y: parent.Position.Y + 160}
	if offset != nil {
		pos.X += offset.X
		pos.Y += offset.Y
	}
	created, err := e.graph.AddNode(types.Node{
		Kind:     kind,
		Position: pos,
		Data: types.NodeData{
			AssetID:    a.ID,
			RecipeID:   prov.RecipeID,
			State:      types.StateSuccess,
			Provenance: prov,
		},
	})
	if err != nil {
		e.assets.Remove(a.ID)
		return types.Node{}, err
	}

	if _, err := e.graph.AddEdge(types.Edge{
		Source:       parent.ID,
		Target:       created.ID,
		TargetHandle: types.HandleProduct,
	}); err != nil {
		_, _ = e.graph.RemoveNode(created.ID)
		e.assets.Remove(a.ID)
		return types.Node{}, err
	}

	b := e.behaviors.ForKind(kind)
	patches := b.Create(behavior.Context{Node: created, Graph: e.graph, Assets: e.assets})
	if err := behavior.Apply(e.graph, patches); err != nil {
		return types.Node{}, err
	}
	if e.collector != nil {
		e.collector.RecordNodeCreated(kind)
	}

	created, _ = e.graph.Node(created.ID)
	return created, nil
}

// assetKindFor maps a node kind and payload shape to an asset kind.
func assetKindFor(nodeKind string, data any) types.AssetKind {
	switch nodeKind {
	case "text":
		return types.AssetText
	case "image", "gallery":
		return types.AssetImage
	}
	switch data.(type) {
	case string:
		return types.AssetText
	case []any:
		return types.AssetArray
	case map[string]any:
		return types.AssetRecord
	default:
		return types.AssetText
	}
}
