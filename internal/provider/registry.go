package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider instance bound to the given secrets.
// Instances are constructed at call time so concurrent requests using
// different secrets never share mutable configuration.
type Factory func(secrets Secrets) (Provider, error)

// Registry maps known provider names to factories. Factories are registered
// at startup; resolving an unknown name is a configuration error, not a
// lookup through the filesystem.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for a provider name. Last registration wins.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds a provider instance for name with the given secrets.
func (r *Registry) New(name string, secrets Secrets) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfiguration, name)
	}
	p, err := f(secrets)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
