package flow

import (
	"fmt"
	"sync"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Registry caches loaded definitions keyed by id+version. Read-only after a
// definition lands; concurrent sessions resolve their graph here instead of
// holding a pointer into the editor's document store.
type Registry struct {
	loader *Loader

	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty definition registry.
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader: loader,
		defs:   make(map[string]*Definition),
	}
}

func defKey(id string, version int) string {
	return fmt.Sprintf("%s@%d", id, version)
}

// Put validates a raw graph and stores the resulting definition.
// Re-registering the same id+version is a conflict: published versions are
// immutable, edits must bump the version.
func (r *Registry) Put(raw []byte) (*Definition, error) {
	def, err := r.loader.Load(raw)
	if err != nil {
		return nil, err
	}

	key := defKey(def.ID(), def.Version())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[key]; exists {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %s version %d already registered", def.ID(), def.Version())
	}
	r.defs[key] = def
	return def, nil
}

// Get resolves a definition by id+version.
func (r *Registry) Get(id string, version int) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[defKey(id, version)]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"workflow %s version %d not registered", id, version)
	}
	return def, nil
}

// Latest returns the highest registered version of a workflow.
func (r *Registry) Latest(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Definition
	for _, def := range r.defs {
		if def.ID() != id {
			continue
		}
		if best == nil || def.Version() > best.Version() {
			best = def
		}
	}
	if best == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %s not registered", id)
	}
	return best, nil
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
