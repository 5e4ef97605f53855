package loom

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/asset"
	"github.com/loomworks/loom/behavior"
	"github.com/loomworks/loom/config"
	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/project"
	"github.com/loomworks/loom/types"
)

type stubService struct {
	reply llm.Response
}

func (s *stubService) Execute(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &s.reply, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Project.Root = t.TempDir()
	cfg.Recipes.Dir = t.TempDir()
	cfg.Engine.DisplayDelay = 0
	return cfg
}

func TestOpen_RunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	manifest := `
id: shout
name: Shout
category: text
inputs:
  - key: text
    type: string
    required: true
executor:
  type: template
  template: ">> {{text}} <<"
`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Recipes.Dir, "shout.yaml"), []byte(manifest), 0o644))

	ws, err := Open(cfg, nil,
		WithService(&stubService{}),
		WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	n, err := ws.LoadRecipes()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := ws.Assets.Create(types.AssetText, "Hello World", asset.CreateMeta{Name: "greeting"})
	require.NoError(t, err)
	node, err := ws.Graph.AddNode(types.Node{Kind: "text", Data: types.NodeData{AssetID: a.ID}})
	require.NoError(t, err)

	report, err := ws.Engine.Run(context.Background(), node.ID, "shout")
	require.NoError(t, err)
	require.Len(t, report.Created, 1)

	created := report.Created[0]
	out, ok := ws.Assets.Get(created.Data.AssetID)
	require.True(t, ok)
	assert.Equal(t, ">> Hello World <<", out.Value)
	require.NotNil(t, created.Data.Provenance)
	assert.Equal(t, "shout", created.Data.Provenance.RecipeID)
}

func TestWorkspace_ProjectRoundTripWithSweep(t *testing.T) {
	cfg := testConfig(t)
	ws, err := Open(cfg, nil,
		WithService(&stubService{}),
		WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	a, err := ws.Assets.Create(types.AssetText, "draft", asset.CreateMeta{Name: "source"})
	require.NoError(t, err)
	src, err := ws.Graph.AddNode(types.Node{Kind: "text", Data: types.NodeData{AssetID: a.ID}})
	require.NoError(t, err)
	_, err = ws.Graph.AddNode(types.Node{ID: "out", Kind: "text", Data: types.NodeData{
		State: types.StateSuccess,
		Provenance: &types.Provenance{
			RecipeID:    "shout",
			GeneratedAt: time.Now().UnixMilli(),
			Sources:     []types.ProvenanceSource{{NodeID: src.ID, NodeHash: a.Hash, Slot: "text"}},
		},
	}})
	require.NoError(t, err)

	p := project.New("demo")
	require.NoError(t, ws.SaveProject(p))

	// Mutate the source, reload into a fresh workspace: the sweep flags
	// the generated node without touching its stored provenance.
	require.NoError(t, ws.Assets.SetValue(a.ID, "edited"))
	require.NoError(t, ws.SaveProject(p))

	ws2, err := Open(cfg, nil,
		WithService(&stubService{}),
		WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	_, err = ws2.LoadProject()
	require.NoError(t, err)

	assert.Equal(t, []string{"out"}, ws2.Propagator.StaleNodes())
	out, ok := ws2.Graph.Node("out")
	require.True(t, ok)
	assert.Equal(t, a.Hash, out.Data.Provenance.Sources[0].NodeHash)
}

func TestOpen_SQLiteSidecarPersistsAssetsAndHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Project.UseSQLite = true

	ws, err := Open(cfg, nil, WithService(&stubService{}))
	require.NoError(t, err)
	defer ws.Close()

	a, err := ws.Assets.Create(types.AssetText, "v1", asset.CreateMeta{Name: "doc"})
	require.NoError(t, err)
	require.NoError(t, ws.Assets.SetValue(a.ID, "v2"))

	// In-memory history tracked both versions via the change feed.
	assert.Equal(t, 2, ws.AssetHistory.Count(a.ID))

	// The durable history saw the mutation too.
	snaps, err := ws.SQL.HistoryFor(a.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, snaps)
	assert.Equal(t, "v2", snaps[0].Value)

	require.NoError(t, ws.SaveProject(project.New("demo")))
	require.NoError(t, ws.Close())

	// A fresh workspace reads the asset back from the sidecar.
	ws2, err := Open(cfg, nil, WithService(&stubService{}))
	require.NoError(t, err)
	defer ws2.Close()

	_, err = ws2.LoadProject()
	require.NoError(t, err)
	got, ok := ws2.Assets.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "v2", got.Value)
}

func TestOpen_EditorUndoWired(t *testing.T) {
	cfg := testConfig(t)
	ws, err := Open(cfg, nil, WithService(&stubService{}))
	require.NoError(t, err)

	_, err = ws.Editor.AddNode(types.Node{ID: "a", Kind: "text"})
	require.NoError(t, err)
	require.True(t, ws.History.CanUndo())
	require.NoError(t, ws.History.Undo())
	_, ok := ws.Graph.Node("a")
	assert.False(t, ok)
}

func TestOpen_TwiceInOneProcess(t *testing.T) {
	// Default registries are per-workspace, so repeated assembly must not
	// collide on metric registration.
	_, err := Open(testConfig(t), nil, WithService(&stubService{}))
	require.NoError(t, err)
	_, err = Open(testConfig(t), nil, WithService(&stubService{}))
	require.NoError(t, err)
}

func TestOpen_GalleryMergeBuiltin(t *testing.T) {
	cfg := testConfig(t)
	ws, err := Open(cfg, nil,
		WithService(&stubService{}),
		WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	b := ws.Behaviors.ForKind("gallery")
	require.True(t, b.CanMergeItems())

	a, err := ws.Assets.Create(types.AssetRecord, map[string]any{"items": []any{"one"}}, asset.CreateMeta{})
	require.NoError(t, err)
	node, err := ws.Graph.AddNode(types.Node{Kind: "gallery", Data: types.NodeData{AssetID: a.ID}})
	require.NoError(t, err)

	bctx := behavior.Context{Node: node, Graph: ws.Graph, Assets: ws.Assets}
	merged := b.Merge(bctx, b.Items(bctx), []any{"two"})
	assert.Equal(t, []any{"one", "two"}, merged)
}
