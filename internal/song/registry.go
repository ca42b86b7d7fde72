package song

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry resolves providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Lookup resolves a "provider:id" key to a song.
func (r *Registry) Lookup(ctx context.Context, key string) (*Song, error) {
	name, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed key %q", ErrInvalid, key)
	}
	p, found := r.Get(name)
	if !found {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p.Lookup(ctx, id)
}
