// Package hooks provides a process-wide shutdown hook registry.
//
// Components register cleanup functions that run when the daemon begins
// shutting down. Hooks run once, in reverse registration order. A hook
// registered after shutdown has begun runs immediately, so work started
// during a shutdown race is still cleaned up.
package hooks

import (
	"log/slog"
	"sync"
)

// Handle identifies a registered hook for deregistration.
type Handle uint64

type entry struct {
	name string
	fn   func()
}

// Registry holds shutdown hooks.
type Registry struct {
	mu    sync.Mutex
	next  Handle
	order []Handle
	hooks map[Handle]entry
	ran   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[Handle]entry)}
}

// Register adds a named hook. If shutdown has already begun the hook runs
// immediately and the returned handle is already spent.
func (r *Registry) Register(name string, fn func()) Handle {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		slog.Debug("Shutdown in progress, running hook immediately", "hook", name)
		fn()
		return 0
	}
	r.next++
	h := r.next
	r.hooks[h] = entry{name: name, fn: fn}
	r.order = append(r.order, h)
	r.mu.Unlock()
	return h
}

// Deregister removes a hook so it no longer runs at shutdown. It reports
// whether the hook was still registered.
func (r *Registry) Deregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hooks[h]; !ok {
		return false
	}
	delete(r.hooks, h)
	return true
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks)
}

// Run executes all registered hooks in reverse registration order.
// Subsequent calls are no-ops. Hooks run outside the registry lock, so
// they may call Register and Deregister.
func (r *Registry) Run() {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return
	}
	r.ran = true
	entries := make([]entry, 0, len(r.hooks))
	for i := len(r.order) - 1; i >= 0; i-- {
		if e, ok := r.hooks[r.order[i]]; ok {
			entries = append(entries, e)
		}
	}
	r.hooks = make(map[Handle]entry)
	r.order = nil
	r.mu.Unlock()

	for _, e := range entries {
		slog.Debug("Running shutdown hook", "hook", e.name)
		e.fn()
	}
}
