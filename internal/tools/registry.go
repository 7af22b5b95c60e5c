package tools

import (
	"sync"

	"github.com/cratos-ai/cratos/internal/coreerr"
)

// Registry is a thread-safe catalogue of tool descriptors: register, get,
// and unregister over a mutex-guarded map.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds or replaces a tool descriptor.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
}

// Unregister removes a tool descriptor by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// lookup resolves name to a descriptor or a NotFound coreerr.
func (r *Registry) lookup(name string) (*Descriptor, error) {
	d, ok := r.Get(name)
	if !ok {
		return nil, coreerr.NotFound("tool " + name)
	}
	return d, nil
}

// List returns every registered descriptor.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// Enabled returns only the descriptors currently marked Enabled, the set
// a caller should advertise to an LLM provider.
func (r *Registry) Enabled() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}
