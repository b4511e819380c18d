package provider

import "sync"

// Registry holds the fetchers of one category keyed by name.
type Registry[S Subject] struct {
	mu        sync.RWMutex
	providers map[ProviderName]Fetcher[S]
}

// NewRegistry creates an empty provider registry.
func NewRegistry[S Subject]() *Registry[S] {
	return &Registry[S]{
		providers: make(map[ProviderName]Fetcher[S]),
	}
}

// Register adds a fetcher to the registry, replacing any with the same name.
func (r *Registry[S]) Register(f Fetcher[S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[f.Name()] = f
}

// Get returns a fetcher by name, or nil if not registered.
func (r *Registry[S]) Get(name ProviderName) Fetcher[S] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Names returns the registered names in display order.
func (r *Registry[S]) Names() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []ProviderName
	for _, name := range AllProviderNames() {
		if _, ok := r.providers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
