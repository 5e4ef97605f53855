package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/loom/asset"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

func TestFileStore_InitOrLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, zap.NewNop())

	p, err := store.InitOrLoad("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Meta.Name)
	assert.NotEmpty(t, p.Meta.ID)
	assert.Equal(t, FormatVersion, p.Version)
	assert.True(t, store.Exists())

	// A second call loads the same project instead of re-initializing.
	again, err := store.InitOrLoad("ignored")
	require.NoError(t, err)
	assert.Equal(t, p.Meta.ID, again.Meta.ID)
	assert.Equal(t, "demo", again.Meta.Name)
}

func TestFileStore_SaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, zap.NewNop())

	p, err := store.InitOrLoad("demo")
	require.NoError(t, err)
	p.Settings = map[string]any{"theme": "dark"}
	require.NoError(t, store.Save(p))

	// No temp file is left behind after a successful save.
	_, err = os.Stat(filepath.Join(dir, tmpFileName))
	assert.True(t, os.IsNotExist(err))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "dark", loaded.Settings["theme"])
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir(), zap.NewNop())
	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProjectUnavailable))
	assert.True(t, IsNotFound(err))
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	g := graph.NewStore(zap.NewNop())
	assets := asset.NewStore(zap.NewNop())

	a, err := assets.Create(types.AssetText, "Hello World", asset.CreateMeta{Name: "greeting"})
	require.NoError(t, err)
	_, err = g.AddNode(types.Node{ID: "board", Kind: "board"})
	require.NoError(t, err)
	_, err = g.AddNode(types.Node{ID: "A", Kind: "text", ParentID: "board", Data: types.NodeData{AssetID: a.ID}})
	require.NoError(t, err)
	_, err = g.AddNode(types.Node{ID: "B", Kind: "text", Data: types.NodeData{
		State: types.StateSuccess,
		Provenance: &types.Provenance{
			RecipeID: "shout",
			Sources:  []types.ProvenanceSource{{NodeID: "A", NodeHash: a.Hash, Slot: "text"}},
		},
	}})
	require.NoError(t, err)
	_, err = g.AddEdge(types.Edge{ID: "e1", Source: "A", Target: "B", TargetHandle: types.HandleProduct})
	require.NoError(t, err)

	p := Snapshot(New("demo"), g, assets)

	dir := t.TempDir()
	store := NewFileStore(dir, zap.NewNop())
	require.NoError(t, store.Save(p))
	loaded, err := store.Load()
	require.NoError(t, err)

	g2 := graph.NewStore(zap.NewNop())
	assets2 := asset.NewStore(zap.NewNop())
	require.NoError(t, Restore(loaded, g2, assets2))

	// Structure survives.
	assert.Len(t, g2.Nodes(), 3)
	assert.Len(t, g2.Edges(), 1)
	child, ok := g2.Node("A")
	require.True(t, ok)
	assert.Equal(t, "board", child.ParentID)

	b, ok := g2.Node("B")
	require.True(t, ok)
	require.NotNil(t, b.Data.Provenance)
	assert.Equal(t, "shout", b.Data.Provenance.RecipeID)

	// Hashes are stable across the JSON round trip.
	restored, ok := assets2.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, a.Hash, restored.Hash)
	assert.Equal(t, "Hello World", restored.Value)
}

func TestRestore_ChildBeforeParentOrder(t *testing.T) {
	p := New("demo")
	p.Graph = GraphState{
		Nodes: []types.Node{
			{ID: "child", Kind: "text", ParentID: "parent"},
			{ID: "parent", Kind: "board"},
		},
	}

	g := graph.NewStore(zap.NewNop())
	assets := asset.NewStore(zap.NewNop())
	require.NoError(t, Restore(p, g, assets))

	child, ok := g.Node("child")
	require.True(t, ok)
	assert.Equal(t, "parent", child.ParentID)
}
