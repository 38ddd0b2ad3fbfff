package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupportedRuntime is returned by Resolve for a runtime with no backend.
var ErrUnsupportedRuntime = errors.New("unsupported runtime")

// RuntimeInfo pairs a runtime name with the capabilities of its backend.
type RuntimeInfo struct {
	Runtime      string       `json:"runtime"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry maps runtime names to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register serves runtime with b, replacing any earlier registration.
func (r *Registry) Register(runtime string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[runtime] = b
}

// Resolve returns the backend for runtime.
func (r *Registry) Resolve(runtime string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[runtime]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRuntime, runtime)
	}
	return b, nil
}

// Runtimes returns the registered runtime names, sorted.
func (r *Registry) Runtimes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every registered runtime with its backend's capabilities,
// sorted by runtime for a stable API response.
func (r *Registry) List() []RuntimeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]RuntimeInfo, 0, len(r.backends))
	for name, b := range r.backends {
		infos = append(infos, RuntimeInfo{
			Runtime:      name,
			Capabilities: b.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Runtime < infos[j].Runtime
	})
	return infos
}
