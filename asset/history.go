package asset

import (
	"sync"

	"github.com/loomworks/loom/types"
)

// maxHistoryPerAsset caps retained snapshots per asset.
const maxHistoryPerAsset = 50

// HistoryEntry is one content snapshot of an asset.
type HistoryEntry struct {
	Seq       int64             `json:"seq"`
	AssetID   string            `json:"assetId"`
	Hash      types.Fingerprint `json:"hash"`
	Value     any               `json:"value"`
	CreatedAt int64             `json:"createdAt"`
}

// History keeps content-addressed version snapshots of assets. Snapshots
// are deduplicated by (assetID, hash): rewriting the same content does not
// grow the history. Attach it to a Store with Track.
type History struct {
	mu      sync.Mutex
	entries map[string][]HistoryEntry
	nextSeq int64
	now     func() int64
}

// NewHistory creates an empty history recorder.
func NewHistory() *History {
	return &History{entries: make(map[string][]HistoryEntry)}
}

// Track subscribes the history to the store's change feed and seeds the
// timestamp source from it.
func (h *History) Track(store *Store) {
	h.now = store.now
	store.Subscribe(func(a types.Asset) {
		h.Record(a)
	})
}

// Record stores a snapshot of the asset if its hash is new for that asset.
// Returns true when a snapshot was created.
func (h *History) Record(a types.Asset) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range h.entries[a.ID] {
		if e.Hash == a.Hash {
			return false
		}
	}

	h.nextSeq++
	createdAt := a.Sys.UpdatedAt
	if h.now != nil {
		createdAt = h.now()
	}
	entries := append(h.entries[a.ID], HistoryEntry{
		Seq:       h.nextSeq,
		AssetID:   a.ID,
		Hash:      a.Hash,
		Value:     a.Value,
		CreatedAt: createdAt,
	})
	if len(entries) > maxHistoryPerAsset {
		entries = entries[len(entries)-maxHistoryPerAsset:]
	}
	h.entries[a.ID] = entries
	return true
}

// ForAsset returns snapshots for an asset, newest first, capped at limit
// (0 means all retained entries).
func (h *History) ForAsset(assetID string, limit int) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.entries[assetID]
	out := make([]HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Entry looks up a snapshot by sequence number.
func (h *History) Entry(seq int64) (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, entries := range h.entries {
		for _, e := range entries {
			if e.Seq == seq {
				return e, true
			}
		}
	}
	return HistoryEntry{}, false
}

// Count returns the number of retained snapshots for an asset.
func (h *History) Count(assetID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries[assetID])
}

// Restore writes a snapshot's value back to the store as a regular value
// update; the restore itself becomes the newest version.
func (h *History) Restore(store *Store, seq int64) error {
	e, ok := h.Entry(seq)
	if !ok {
		return types.Errorf(types.ErrAssetNotFound, "history entry %d not found", seq)
	}
	return store.SetValue(e.AssetID, e.Value)
}
