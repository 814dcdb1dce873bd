package driver

import (
	"sync"

	"driverd/internal/apperrors"
)

// registry tracks runners with thread-safe access.
type registry struct {
	mu      sync.RWMutex
	drivers map[string]*Runner
}

// newRegistry creates an empty registry.
func newRegistry() *registry {
	return &registry{drivers: make(map[string]*Runner)}
}

// reserve attempts to claim a driver ID slot. Returns an error if it
// already exists. The slot holds nil until commit is called.
func (r *registry) reserve(driverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[driverID]; exists {
		return apperrors.Conflict("driver", driverID, "driver already exists")
	}
	r.drivers[driverID] = nil
	return nil
}

// commit fills in a reserved slot with the actual runner.
func (r *registry) commit(driverID string, runner *Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[driverID] = runner
}

// release removes a driver from the registry. Returns the runner if it
// existed.
func (r *registry) release(driverID string) (*Runner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runner, exists := r.drivers[driverID]
	if exists {
		delete(r.drivers, driverID)
	}
	return runner, exists
}

// get retrieves a driver's runner. Returns (nil, true) if reserved but
// not yet committed.
func (r *registry) get(driverID string) (*Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, exists := r.drivers[driverID]
	return runner, exists
}

// list returns all driver IDs and their runners.
func (r *registry) list() map[string]*Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Runner, len(r.drivers))
	for id, runner := range r.drivers {
		result[id] = runner
	}
	return result
}

// ids returns all driver IDs.
func (r *registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	return ids
}
