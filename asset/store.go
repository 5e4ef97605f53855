package asset

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomworks/loom/types"
)

// ChangeListener is notified after an asset mutation has been committed.
// Listeners run synchronously once the store's writer lock is released and
// receive a copy of the mutated asset.
type ChangeListener func(asset types.Asset)

// CreateMeta carries the caller-supplied metadata for a new asset.
type CreateMeta struct {
	Name   string
	Source types.AssetSource
	Config types.AssetConfig
}

// SysPatch is a partial update of an asset's system metadata. Nil fields
// are left untouched.
type SysPatch struct {
	Name   *string
	Source *types.AssetSource
}

// Store is the serialized asset repository. A single mutex orders all
// mutations; there is no concurrent in-place mutation of the same asset.
type Store struct {
	mu        sync.Mutex
	assets    map[string]*types.Asset
	listeners []ChangeListener
	logger    *zap.Logger
	now       func() int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the millisecond timestamp source.
func WithClock(now func() int64) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty asset store.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		assets: make(map[string]*types.Asset),
		logger: logger.With(zap.String("component", "asset_store")),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a change listener. Listeners are invoked after every
// committed mutation, in registration order.
func (s *Store) Subscribe(fn ChangeListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Create adds a new asset of the given kind and returns a copy of it.
func (s *Store) Create(kind types.AssetKind, value any, meta CreateMeta) (types.Asset, error) {
	hash, err := types.HashValue(value)
	if err != nil {
		return types.Asset{}, types.NewError(types.ErrBadInputShape, "asset value is not serializable").WithCause(err)
	}

	now := s.now()
	source := meta.Source
	if source == "" {
		source = types.SourceUser
	}
	a := &types.Asset{
		ID:        uuid.NewString(),
		Kind:      kind,
		Value:     cloneValue(value),
		ValueMeta: types.DeriveValueMeta(kind, value),
		Config:    meta.Config,
		Sys: types.SysMeta{
			Name:      meta.Name,
			CreatedAt: now,
			UpdatedAt: now,
			Source:    source,
		},
		Hash:    hash,
		Version: 1,
	}

	s.mu.Lock()
	s.assets[a.ID] = a
	copied := cloneAsset(*a)
	s.mu.Unlock()

	s.logger.Debug("asset created",
		zap.String("asset_id", a.ID),
		zap.String("kind", string(kind)),
		zap.String("hash", string(hash)))
	return copied, nil
}

// Put inserts an asset with its existing identity, recomputing the hash.
// Used when reloading a persisted project or restoring a history snapshot.
func (s *Store) Put(a types.Asset) error {
	hash, err := types.HashValue(a.Value)
	if err != nil {
		return types.NewError(types.ErrBadInputShape, "asset value is not serializable").WithCause(err)
	}
	a.Hash = hash
	a.ValueMeta = types.DeriveValueMeta(a.Kind, a.Value)
	if a.Version == 0 {
		a.Version = 1
	}

	s.mu.Lock()
	stored := a
	s.assets[a.ID] = &stored
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the asset, if present. Composite values are cloned,
// so mutating the returned asset never reaches the stored one; content
// changes go through SetValue so the hash stays truthful.
func (s *Store) Get(id string) (types.Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return types.Asset{}, false
	}
	return cloneAsset(*a), true
}

// SetValue replaces an asset's value, recomputing hash, derived metadata,
// and timestamp, then notifies listeners.
func (s *Store) SetValue(id string, value any) error {
	hash, err := types.HashValue(value)
	if err != nil {
		return types.NewError(types.ErrBadInputShape, "asset value is not serializable").WithCause(err)
	}

	s.mu.Lock()
	a, ok := s.assets[id]
	if !ok {
		s.mu.Unlock()
		return types.Errorf(types.ErrAssetNotFound, "asset %s not found", id)
	}
	a.Value = cloneValue(value)
	a.ValueMeta = types.DeriveValueMeta(a.Kind, value)
	a.Hash = hash
	a.Sys.UpdatedAt = s.now()
	a.Version++
	copied := *a
	s.mu.Unlock()

	s.logger.Debug("asset value updated",
		zap.String("asset_id", id),
		zap.Int("version", copied.Version),
		zap.String("hash", string(hash)))
	s.notify(copied)
	return nil
}

// UpdateConfig merges a patch into the asset's configuration. Keys with nil
// values are removed. The value hash is unaffected.
func (s *Store) UpdateConfig(id string, patch map[string]any) error {
	s.mu.Lock()
	a, ok := s.assets[id]
	if !ok {
		s.mu.Unlock()
		return types.Errorf(types.ErrAssetNotFound, "asset %s not found", id)
	}
	if a.Config == nil {
		a.Config = types.AssetConfig{}
	}
	for k, v := range patch {
		if v == nil {
			delete(a.Config, k)
			continue
		}
		a.Config[k] = v
	}
	if len(a.Config) == 0 {
		a.Config = nil
	}
	a.Sys.UpdatedAt = s.now()
	copied := *a
	s.mu.Unlock()

	s.notify(copied)
	return nil
}

// UpdateSys applies a partial system-metadata update.
func (s *Store) UpdateSys(id string, patch SysPatch) error {
	s.mu.Lock()
	a, ok := s.assets[id]
	if !ok {
		s.mu.Unlock()
		return types.Errorf(types.ErrAssetNotFound, "asset %s not found", id)
	}
	if patch.Name != nil {
		a.Sys.Name = *patch.Name
	}
	if patch.Source != nil {
		a.Sys.Source = *patch.Source
	}
	a.Sys.UpdatedAt = s.now()
	copied := *a
	s.mu.Unlock()

	s.notify(copied)
	return nil
}

// Remove deletes an asset. Removing an absent asset is a no-op so that
// cascading node deletion stays idempotent.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.assets, id)
	s.mu.Unlock()
}

// All returns copies of every stored asset.
func (s *Store) All() []types.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, cloneAsset(*a))
	}
	return out
}

// Len returns the number of stored assets.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assets)
}

func (s *Store) notify(a types.Asset) {
	s.mu.Lock()
	listeners := make([]ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	clone := cloneAsset(a)
	for _, fn := range listeners {
		fn(clone)
	}
}

// cloneAsset copies an asset deeply enough that callers cannot reach store
// internals through shared maps or slices.
func cloneAsset(a types.Asset) types.Asset {
	a.Value = cloneValue(a.Value)
	if a.ValueMeta != nil {
		meta := make(map[string]any, len(a.ValueMeta))
		for k, v := range a.ValueMeta {
			meta[k] = cloneValue(v)
		}
		a.ValueMeta = meta
	}
	if a.Config != nil {
		cfg := make(types.AssetConfig, len(a.Config))
		for k, v := range a.Config {
			cfg[k] = cloneValue(v)
		}
		a.Config = cfg
	}
	return a
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
