package engine

import (
	"go.uber.org/zap"

	"github.com/loomworks/loom/asset"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/types"
)

// Propagator flags generated nodes stale when a recorded source no longer
// matches its live fingerprint. It reacts to asset mutations one hop at a
// time: a node stale because its direct source changed does not cascade
// further unless its own value is later altered. Stored provenance is never
// rewritten; only the node's state changes.
type Propagator struct {
	graph     *graph.Store
	assets    *asset.Store
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewPropagator creates a Propagator over the given stores.
func NewPropagator(g *graph.Store, assets *asset.Store, collector *metrics.Collector, logger *zap.Logger) *Propagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{
		graph:     g,
		assets:    assets,
		collector: collector,
		logger:    logger.With(zap.String("component", "propagator")),
	}
}

// Track subscribes the propagator to the asset store's change feed.
func (p *Propagator) Track() {
	p.assets.Subscribe(func(a types.Asset) {
		p.OnAssetChanged(a)
	})
}

// OnAssetChanged re-checks every node whose provenance references the
// mutated asset's owning node.
func (p *Propagator) OnAssetChanged(a types.Asset) {
	ownerID, ok := p.ownerOf(a.ID)
	if !ok {
		return
	}
	for _, node := range p.graph.Nodes() {
		if node.Data.Provenance == nil || node.Data.State == types.StateStale {
			continue
		}
		for _, src := range node.Data.Provenance.Sources {
			if src.NodeID != ownerID {
				continue
			}
			if src.NodeHash != a.Hash {
				p.markStale(node.ID, ownerID)
			}
			break
		}
	}
}

// Sweep re-evaluates staleness across the whole graph against live
// fingerprints. Used after loading a project, where mutation events were
// not observed.
func (p *Propagator) Sweep() int {
	flagged := 0
	for _, node := range p.graph.Nodes() {
		if node.Data.Provenance == nil || node.Data.State == types.StateStale {
			continue
		}
		if p.isStale(*node.Data.Provenance) {
			p.markStale(node.ID, "")
			flagged++
		}
	}
	return flagged
}

// StaleNodes lists the ids of nodes currently flagged stale.
func (p *Propagator) StaleNodes() []string {
	var ids []string
	for _, node := range p.graph.Nodes() {
		if node.Data.State == types.StateStale {
			ids = append(ids, node.ID)
		}
	}
	return ids
}

// isStale reports whether any recorded source fingerprint no longer
// matches the live hash of the asset its node currently owns.
func (p *Propagator) isStale(prov types.Provenance) bool {
	for _, src := range prov.Sources {
		node, ok := p.graph.Node(src.NodeID)
		if !ok || node.Data.AssetID == "" {
			continue
		}
		a, ok := p.assets.Get(node.Data.AssetID)
		if !ok {
			continue
		}
		if a.Hash != src.NodeHash {
			return true
		}
	}
	return false
}

func (p *Propagator) markStale(nodeID, sourceID string) {
	_ = p.graph.ApplyPatch(nodeID, map[string]any{
		"state":        types.StateStale,
		"stateMessage": "a source has changed since this was generated",
	})
	if p.collector != nil {
		p.collector.RecordStale()
	}
	p.logger.Debug("node flagged stale",
		zap.String("node", nodeID),
		zap.String("source", sourceID))
}

// ownerOf finds the node that owns an asset.
func (p *Propagator) ownerOf(assetID string) (string, bool) {
	for _, node := range p.graph.Nodes() {
		if node.Data.AssetID == assetID {
			return node.ID, true
		}
	}
	return "", false
}
