package backend

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// ErrUnknownRuntime is returned by Resolve when no backend serves a runtime.
var ErrUnknownRuntime = errors.New("no backend for runtime")

// BackendInfo pairs a backend name with its capabilities.
type BackendInfo struct {
	Name         string              `json:"name"`
	Capabilities BackendCapabilities `json:"capabilities"`
}

// Registry holds registered backends and resolves which one runs a given
// workload runtime.
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

// Register adds a backend to the registry under the given name.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
}

// Resolve returns the backend for runtime. A backend registered under the
// runtime's own name wins; otherwise the first backend, by name, that lists
// the runtime among its capabilities is used.
func (r *Registry) Resolve(runtime string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.backends[runtime]; ok {
		return b, nil
	}

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b := r.backends[name]
		if slices.Contains(b.Capabilities().SupportedRuntimes, runtime) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownRuntime, runtime)
}

// List returns information about all registered backends, sorted by name
// for a stable API response.
func (r *Registry) List() []BackendInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]BackendInfo, 0, len(r.backends))
	for name, b := range r.backends {
		infos = append(infos, BackendInfo{
			Name:         name,
			Capabilities: b.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
