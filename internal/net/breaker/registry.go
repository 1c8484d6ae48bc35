package breaker

import "sync"

// Registry holds one breaker per logical source name. Sources are created
// lazily with the registry's config.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		config:   config,
	}
}

// Get returns the breaker for a source, creating it on first use.
func (r *Registry) Get(source string) *Breaker {
	r.mu.RLock()
	b, exists := r.breakers[source]
	r.mu.RUnlock()

	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, exists := r.breakers[source]; exists {
		return b
	}
	b = New(source, r.config)
	r.breakers[source] = b
	return b
}

// Stats returns snapshots for every known source.
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]Stats, len(r.breakers))
	for name, b := range r.breakers {
		stats[name] = b.Stats()
	}
	return stats
}

// States returns just the state string per source, for health reporting.
func (r *Registry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State().String()
	}
	return states
}
