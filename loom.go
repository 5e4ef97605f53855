// Package loom provides a top-level convenience entry point that wires the
// execution core together from configuration.
//
// Usage:
//
//	import "github.com/loomworks/loom"
//
//	ws, err := loom.Open(cfg, logger)
//	report, err := ws.Engine.Run(ctx, nodeID, recipeID)
//
// The individual packages (graph, asset, recipe, engine, ...) remain usable
// on their own; Open is for callers that want the default assembly.
package loom

import (
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loomworks/loom/asset"
	"github.com/loomworks/loom/behavior"
	"github.com/loomworks/loom/config"
	"github.com/loomworks/loom/engine"
	"github.com/loomworks/loom/executor"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/project"
	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

// Workspace is a fully wired execution core: stores, registries, engine,
// and staleness propagation over one project.
type Workspace struct {
	Graph        *graph.Store
	Assets       *asset.Store
	History      *graph.History
	Editor       *graph.Editor
	AssetHistory *asset.History
	Behaviors    *behavior.Registry
	Recipes      *recipe.Registry
	Dispatcher   *executor.Dispatcher
	Engine       *engine.Engine
	Propagator   *engine.Propagator

	// SQL is the SQLite sidecar for assets, asset history, and settings.
	// Nil unless the project config enables it.
	SQL *project.SQLStore

	cfg    *config.Config
	logger *zap.Logger
}

// Option customizes the workspace assembly.
type Option func(*assembly)

type assembly struct {
	service    llm.Service
	registerer prometheus.Registerer
}

// WithService overrides the model execution service, bypassing the
// HTTP client and cache built from configuration. Useful for tests.
func WithService(s llm.Service) Option {
	return func(a *assembly) { a.service = s }
}

// WithRegisterer sets the Prometheus registerer for engine metrics.
// Each Open defaults to a fresh registry; pass a shared registerer to
// expose the metrics on a process-wide endpoint.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *assembly) { a.registerer = reg }
}

// Open assembles a workspace from configuration: empty graph and asset
// stores, behaviors and recipes registered, the engine bound to the model
// execution service (cached when the cache is enabled), and the staleness
// propagator tracking asset changes.
func Open(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &assembly{registerer: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(a)
	}

	collector := metrics.NewCollector("loom", a.registerer, logger)

	service := a.service
	if service == nil {
		service = llm.NewHTTPService(llm.HTTPConfig{
			BaseURL:           cfg.Service.BaseURL,
			Timeout:           cfg.Service.Timeout,
			RequestsPerSecond: cfg.Service.RequestsPerSecond,
		}, logger, llm.WithServiceMetrics(collector))
		if cfg.Cache.Enabled {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.Addr,
				Password: cfg.Cache.Password,
				DB:       cfg.Cache.DB,
			})
			service = llm.NewCache(service, client, cfg.Cache.TTL, logger, llm.WithCacheMetrics(collector))
		}
	}

	g := graph.NewStore(logger)
	assets := asset.NewStore(logger)
	assetHistory := asset.NewHistory()
	assetHistory.Track(assets)
	editor := graph.NewEditor(g, graph.NewHistory(), logger)
	behaviors := behavior.NewRegistry()
	registerBuiltinKinds(behaviors)
	recipes := recipe.NewRegistry()
	dispatcher := executor.NewDispatcher(service, logger)

	eng := engine.New(g, assets, behaviors, recipes, dispatcher, logger,
		engine.WithMetrics(collector),
		engine.WithDisplayDelay(cfg.Engine.DisplayDelay),
		engine.WithCredentials(llm.Credentials{APIKey: cfg.Service.APIKey, BaseURL: cfg.Service.BaseURL}),
	)

	prop := engine.NewPropagator(g, assets, collector, logger)
	prop.Track()

	ws := &Workspace{
		Graph:        g,
		Assets:       assets,
		History:      editor.History(),
		Editor:       editor,
		AssetHistory: assetHistory,
		Behaviors:    behaviors,
		Recipes:      recipes,
		Dispatcher:   dispatcher,
		Engine:       eng,
		Propagator:   prop,
		cfg:          cfg,
		logger:       logger.With(zap.String("component", "workspace")),
	}

	if cfg.Project.UseSQLite {
		sql, err := project.OpenSQLStore(filepath.Join(cfg.Project.Root, "loom.db"), logger)
		if err != nil {
			return nil, err
		}
		ws.SQL = sql
		// Every content version lands in the durable history as it happens.
		assets.Subscribe(func(a types.Asset) {
			if err := sql.AppendHistory(a.ID, a.Hash, a.Value, a.Sys.UpdatedAt); err != nil {
				ws.logger.Warn("append asset history failed",
					zap.String("asset", a.ID), zap.Error(err))
			}
		})
	}
	return ws, nil
}

// Close releases the workspace's durable resources.
func (w *Workspace) Close() error {
	if w.SQL != nil {
		return w.SQL.Close()
	}
	return nil
}

// registerBuiltinKinds installs the behaviors of the standard node kinds.
// Kinds without an entry fall back to the registry's no-op behavior.
func registerBuiltinKinds(r *behavior.Registry) {
	// Galleries hold their items under the asset's "items" key and accept
	// merged results from upstream runs.
	r.Register("gallery", behavior.Behavior{
		GetItems: func(ctx behavior.Context) []any {
			if ctx.Node.Data.AssetID == "" {
				return nil
			}
			a, ok := ctx.Assets.Get(ctx.Node.Data.AssetID)
			if !ok {
				return nil
			}
			record, ok := a.Value.(map[string]any)
			if !ok {
				return nil
			}
			items, _ := record["items"].([]any)
			return items
		},
		MergeItems: func(ctx behavior.Context, existing, incoming []any) []any {
			return append(existing, incoming...)
		},
	})

	// Shortcuts forward their target's output. Resolution recurses through
	// TargetID in the engine; the hook only guards direct self-reference.
	r.Register("shortcut", behavior.Behavior{
		CanConnect: func(ctx behavior.Context, edge types.Edge) error {
			if edge.Source == edge.Target {
				return types.NewError(types.ErrConnectionRefused, "shortcut cannot reference itself")
			}
			return nil
		},
	})
}

// LoadRecipes loads every manifest under the configured recipes directory
// into the registry.
func (w *Workspace) LoadRecipes() (int, error) {
	defs, err := recipe.NewLoader(w.logger).LoadDir(w.cfg.Recipes.Dir)
	if err != nil {
		return 0, err
	}
	if err := w.Recipes.RegisterAll(defs); err != nil {
		return 0, err
	}
	return len(defs), nil
}

// LoadProject restores the project stored under the configured root into
// the workspace, then sweeps for staleness accrued while unloaded. With
// the SQLite sidecar enabled, its asset rows take precedence over the
// JSON document's copies.
func (w *Workspace) LoadProject() (*project.Project, error) {
	store := project.NewFileStore(w.cfg.Project.Root, w.logger)
	p, err := store.Load()
	if err != nil {
		return nil, err
	}
	if err := project.Restore(p, w.Graph, w.Assets); err != nil {
		return nil, err
	}
	if w.SQL != nil {
		rows, err := w.SQL.LoadAssets()
		if err != nil {
			return nil, err
		}
		for _, a := range rows {
			if err := w.Assets.Put(a); err != nil {
				return nil, err
			}
		}
	}
	flagged := w.Propagator.Sweep()
	w.logger.Info("project loaded",
		zap.String("name", p.Meta.Name),
		zap.Int("nodes", len(w.Graph.Nodes())),
		zap.Int("stale", flagged))
	return p, nil
}

// SaveProject snapshots the workspace into p and writes it to disk,
// mirroring the assets into the SQLite sidecar when it is enabled.
func (w *Workspace) SaveProject(p *project.Project) error {
	snap := project.Snapshot(p, w.Graph, w.Assets)
	if err := project.NewFileStore(w.cfg.Project.Root, w.logger).Save(snap); err != nil {
		return err
	}
	if w.SQL != nil {
		if err := w.SQL.SaveAssets(snap.Assets); err != nil {
			return err
		}
	}
	return nil
}
