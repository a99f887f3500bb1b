// Package registry keeps the in-memory catalog of models keyed by id.
package registry

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"ailib/internal/errs"
	"ailib/internal/model"
)

// Registry is safe for concurrent use. It holds non-owning references:
// registering or removing a model never opens or closes its source.
type Registry struct {
	mu        sync.RWMutex
	models    map[string]model.Model
	fallbacks map[string]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		models:    make(map[string]model.Model),
		fallbacks: make(map[string]string),
	}
}

// Register adds m, replacing any model with the same id.
func (r *Registry) Register(m model.Model) error {
	if m == nil {
		return errors.New("register: nil model")
	}
	if m.ID() == "" {
		return errors.New("register: model id is empty")
	}
	r.mu.Lock()
	r.models[m.ID()] = m
	r.mu.Unlock()
	return nil
}

// Unregister removes id and any fallback configured for it. It reports
// whether the id was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.models[id]
	delete(r.models, id)
	delete(r.fallbacks, id)
	return ok
}

// GetByID looks a model up by id.
func (r *Registry) GetByID(id string) (model.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// SetFallback maps primary to fallback. Both must be registered.
func (r *Registry) SetFallback(primary, fallback string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[primary]; !ok {
		return errs.ModelNotFound(primary)
	}
	if _, ok := r.models[fallback]; !ok {
		return errs.ModelNotFound(fallback)
	}
	r.fallbacks[primary] = fallback
	return nil
}

// GetFallback returns the fallback id configured for id.
func (r *Registry) GetFallback(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fb, ok := r.fallbacks[id]
	return fb, ok
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// List returns every model ordered by id.
func (r *Registry) List() []model.Model {
	return r.Search(Criteria{})
}

// Criteria is a conjunction of optional filters; zero fields match anything.
type Criteria struct {
	// Categories matches models in any of the listed categories.
	Categories []string
	// Tags matches models carrying any of the listed tags.
	Tags []string
	// Name is a case-insensitive substring of the model name.
	Name string
	// Version must equal the model version exactly.
	Version string
}

func (c Criteria) match(m model.Model) bool {
	info := m.Info()
	if len(c.Categories) > 0 && !anyOf(info.Categories, c.Categories) {
		return false
	}
	if len(c.Tags) > 0 && !anyOf(info.Tags, c.Tags) {
		return false
	}
	if c.Name != "" && !strings.Contains(strings.ToLower(info.Name), strings.ToLower(c.Name)) {
		return false
	}
	if c.Version != "" && info.Version != c.Version {
		return false
	}
	return true
}

func anyOf(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

// Search returns the models matching c, ordered by id.
func (r *Registry) Search(c Criteria) []model.Model {
	r.mu.RLock()
	out := make([]model.Model, 0, len(r.models))
	for _, m := range r.models {
		if c.match(m) {
			out = append(out, m)
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Model) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}
