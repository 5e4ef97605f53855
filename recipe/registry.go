package recipe

import (
	"sort"
	"sync"

	"github.com/loomworks/loom/types"
)

// Registry holds resolved recipe definitions. Instances are independent;
// construct one per engine rather than sharing process-wide state.
type Registry struct {
	mu      sync.RWMutex
	recipes map[string]Definition
}

// NewRegistry creates an empty recipe registry.
func NewRegistry() *Registry {
	return &Registry{recipes: make(map[string]Definition)}
}

// Register validates and stores a definition. Re-registering an id replaces
// the previous definition, which lets a manifest reload pick up edits.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes[def.ID] = def
	return nil
}

// RegisterAll registers every definition, stopping at the first invalid one.
func (r *Registry) RegisterAll(defs []Definition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the definition registered under id.
func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.recipes[id]
	if !ok {
		return Definition{}, types.Errorf(types.ErrRecipeNotFound, "recipe %q is not registered", id)
	}
	return def, nil
}

// All returns every registered definition sorted by name.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.recipes))
	for _, def := range r.recipes {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ByCategory returns the definitions in a category sorted by name.
func (r *Registry) ByCategory(category string) []Definition {
	var defs []Definition
	for _, def := range r.All() {
		if def.Category == category {
			defs = append(defs, def)
		}
	}
	return defs
}

// Categories returns the distinct categories in sorted order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var cats []string
	for _, def := range r.recipes {
		if _, ok := seen[def.Category]; ok || def.Category == "" {
			continue
		}
		seen[def.Category] = struct{}{}
		cats = append(cats, def.Category)
	}
	sort.Strings(cats)
	return cats
}

// Len returns the number of registered recipes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.recipes)
}
