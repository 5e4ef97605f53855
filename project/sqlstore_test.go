package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/loom/types"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(filepath.Join(t.TempDir(), "loom.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStore_AssetsRoundTrip(t *testing.T) {
	store := openTestStore(t)

	in := []types.Asset{
		{
			ID:      "a1",
			Kind:    types.AssetText,
			Value:   "Hello World",
			Sys:     types.SysMeta{Name: "greeting", CreatedAt: 100, UpdatedAt: 200, Source: types.SourceUser},
			Hash:    "h1",
			Version: 3,
		},
		{
			ID:        "a2",
			Kind:      types.AssetRecord,
			Value:     map[string]any{"title": "One", "count": 2.0},
			ValueMeta: map[string]any{"keys": 2.0},
			Config:    map[string]any{"schema": "task"},
			Sys:       types.SysMeta{Name: "task", Source: types.SourceGenerated},
			Hash:      "h2",
			Version:   1,
		},
	}
	require.NoError(t, store.SaveAssets(in))

	out, err := store.LoadAssets()
	require.NoError(t, err)
	require.Len(t, out, 2)

	byID := map[string]types.Asset{}
	for _, a := range out {
		byID[a.ID] = a
	}
	assert.Equal(t, "Hello World", byID["a1"].Value)
	assert.Equal(t, types.Fingerprint("h1"), byID["a1"].Hash)
	assert.Equal(t, 3, byID["a1"].Version)
	assert.Equal(t, int64(100), byID["a1"].Sys.CreatedAt)

	record := byID["a2"].Value.(map[string]any)
	assert.Equal(t, "One", record["title"])
	assert.Equal(t, types.AssetConfig{"schema": "task"}, byID["a2"].Config)
	assert.Equal(t, types.SourceGenerated, byID["a2"].Sys.Source)
}

func TestSQLStore_SaveReplacesAssets(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveAssets([]types.Asset{{ID: "old", Kind: types.AssetText, Value: "x"}}))
	require.NoError(t, store.SaveAssets([]types.Asset{{ID: "new", Kind: types.AssetText, Value: "y"}}))

	out, err := store.LoadAssets()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].ID)
}

func TestSQLStore_History(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.AppendHistory("a1", "h1", "v1", 100))
	require.NoError(t, store.AppendHistory("a1", "h2", "v2", 200))
	require.NoError(t, store.AppendHistory("other", "hx", "vx", 300))

	snaps, err := store.HistoryFor("a1", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// Newest first.
	assert.Equal(t, types.Fingerprint("h2"), snaps[0].Hash)
	assert.Equal(t, "v2", snaps[0].Value)
	assert.Equal(t, types.Fingerprint("h1"), snaps[1].Hash)

	limited, err := store.HistoryFor("a1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, types.Fingerprint("h2"), limited[0].Hash)
}

func TestSQLStore_Settings(t *testing.T) {
	store := openTestStore(t)

	creds := map[string]string{"openai": "sk-test"}
	require.NoError(t, store.PutSetting("credentials", creds))

	var out map[string]string
	found, err := store.GetSetting("credentials", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sk-test", out["openai"])

	// Overwrite in place.
	require.NoError(t, store.PutSetting("credentials", map[string]string{"openai": "sk-new"}))
	found, err = store.GetSetting("credentials", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sk-new", out["openai"])

	found, err = store.GetSetting("missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
