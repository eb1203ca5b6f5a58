package crusher

import (
	"fmt"
	"sort"
	"sync"
)

// Proxy is the lifecycle surface shared by TCP and UDP, letting a registry
// or admin API drive either uniformly by name.
type Proxy interface {
	Open() error
	Close() error
	Crush() error
	Freeze() error
	Unfreeze() error
	IsOpen() bool
	IsFrozen() bool
}

// Registry holds a named set of Proxy instances, one per configured route.
// It is the collaborator the admin API and cmd/crusher's main loop use to
// address routes by name.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Proxy
	order  []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Proxy)}
}

// Register adds a named Proxy. It is an error to reuse a name.
func (r *Registry) Register(name string, p Proxy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[name]; exists {
		return fmt.Errorf("crusher: route %q already registered", name)
	}
	r.routes[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns the named Proxy, or false if no such route exists.
func (r *Registry) Get(name string) (Proxy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.routes[name]
	return p, ok
}

// Names returns every registered route name, sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// OpenAll opens every registered route, returning the first error
// encountered (if any) after attempting all of them.
func (r *Registry) OpenAll() error {
	var firstErr error
	for _, name := range r.Names() {
		p, _ := r.Get(name)
		if err := p.Open(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("route %q: %w", name, err)
		}
	}
	return firstErr
}

// CloseAll closes every registered route, returning the first error
// encountered (if any) after attempting all of them.
func (r *Registry) CloseAll() error {
	var firstErr error
	for _, name := range r.Names() {
		p, _ := r.Get(name)
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("route %q: %w", name, err)
		}
	}
	return firstErr
}
