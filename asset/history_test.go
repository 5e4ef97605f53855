package asset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/types"
)

func TestHistory_DeduplicatesByHash(t *testing.T) {
	s := newTestStore()
	h := NewHistory()
	h.Track(s)

	a, err := s.Create(types.AssetText, "hello", CreateMeta{})
	require.NoError(t, err)

	require.NoError(t, s.SetValue(a.ID, "world"))
	require.NoError(t, s.SetValue(a.ID, "hello"))
	// Same content again: no new snapshot.
	require.NoError(t, s.SetValue(a.ID, "world"))

	assert.Equal(t, 2, h.Count(a.ID))
}

func TestHistory_NewestFirst(t *testing.T) {
	s := newTestStore()
	h := NewHistory()
	h.Track(s)

	a, err := s.Create(types.AssetText, "v0", CreateMeta{})
	require.NoError(t, err)
	require.NoError(t, s.SetValue(a.ID, "v1"))
	require.NoError(t, s.SetValue(a.ID, "v2"))

	entries := h.ForAsset(a.ID, 0)
	require.Len(t, entries, 2)
	assert.Equal(t, "v2", entries[0].Value)
	assert.Equal(t, "v1", entries[1].Value)

	limited := h.ForAsset(a.ID, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "v2", limited[0].Value)
}

func TestHistory_CapsRetainedSnapshots(t *testing.T) {
	s := newTestStore()
	h := NewHistory()
	h.Track(s)

	a, err := s.Create(types.AssetText, "seed", CreateMeta{})
	require.NoError(t, err)
	for i := 0; i < maxHistoryPerAsset+10; i++ {
		require.NoError(t, s.SetValue(a.ID, fmt.Sprintf("content-%d", i)))
	}

	assert.Equal(t, maxHistoryPerAsset, h.Count(a.ID))
}

func TestHistory_Restore(t *testing.T) {
	s := newTestStore()
	h := NewHistory()
	h.Track(s)

	a, err := s.Create(types.AssetText, "seed", CreateMeta{})
	require.NoError(t, err)
	require.NoError(t, s.SetValue(a.ID, "first"))
	require.NoError(t, s.SetValue(a.ID, "second"))

	entries := h.ForAsset(a.ID, 0)
	var firstSeq int64
	for _, e := range entries {
		if e.Value == "first" {
			firstSeq = e.Seq
		}
	}
	require.NotZero(t, firstSeq)

	require.NoError(t, h.Restore(s, firstSeq))
	got, _ := s.Get(a.ID)
	assert.Equal(t, "first", got.Text())

	err = h.Restore(s, 9999)
	assert.True(t, types.IsCode(err, types.ErrAssetNotFound))
}
