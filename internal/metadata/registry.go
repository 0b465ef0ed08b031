package metadata

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when an extractor name is unknown.
var ErrNotFound = errors.New("metadata: extractor not found")

// Registry maps extractor names to implementations.
// Names are kept in registration order so merges are deterministic.
type Registry struct {
	mu         sync.RWMutex
	names      []string
	extractors map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// Register installs an extractor under name. It panics on an empty name,
// a nil extractor or a duplicate registration.
func (r *Registry) Register(name string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		panic("metadata: empty name in Register")
	}
	if e == nil {
		panic(fmt.Sprintf("metadata: nil extractor for %q", name))
	}
	if _, dup := r.extractors[name]; dup {
		panic(fmt.Sprintf("metadata: duplicate registration for %q", name))
	}
	r.extractors[name] = e
	r.names = append(r.names, name)
}

// Get returns the extractor registered under name.
func (r *Registry) Get(name string) (Extractor, error) {
	r.mu.RLock()
	e, ok := r.extractors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Status describes one registered extractor for listings.
type Status struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Statuses reports availability of every registered extractor.
func (r *Registry) Statuses() []Status {
	names := r.Names()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		e, err := r.Get(name)
		if err != nil {
			continue
		}
		out = append(out, Status{Name: name, Available: e.IsAvailable()})
	}
	return out
}
