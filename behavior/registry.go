package behavior

import "sync"

// Registry maps node kinds to behaviors. Registries are explicit objects
// passed by reference so tests can build isolated instances; there is no
// package-level table.
type Registry struct {
	mu        sync.RWMutex
	behaviors map[string]Behavior
}

// NewRegistry creates an empty behavior registry.
func NewRegistry() *Registry {
	return &Registry{behaviors: make(map[string]Behavior)}
}

// Register binds a behavior to a node kind, replacing any previous binding.
func (r *Registry) Register(kind string, b Behavior) {
	r.mu.Lock()
	r.behaviors[kind] = b
	r.mu.Unlock()
}

// ForKind returns the behavior registered for a kind. Unregistered kinds
// receive the zero Behavior, whose hooks are all no-ops.
func (r *Registry) ForKind(kind string) Behavior {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.behaviors[kind]
}

// Kinds lists all registered kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.behaviors))
	for k := range r.behaviors {
		kinds = append(kinds, k)
	}
	return kinds
}

// PatchApplier applies a declarative patch to one node. The graph store
// implements it; hooks stay pure and the reducer is the only writer.
type PatchApplier interface {
	ApplyPatch(targetID string, ops map[string]any) error
}

// Apply runs every patch through the applier, stopping at the first error.
// This is the single reducer for all hook output.
func Apply(applier PatchApplier, patches []Patch) error {
	for _, p := range patches {
		if len(p.Ops) == 0 {
			continue
		}
		if err := applier.ApplyPatch(p.TargetID, p.Ops); err != nil {
			return err
		}
	}
	return nil
}
