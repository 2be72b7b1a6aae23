package correlation

import (
	"context"
	"sync"

	errspkg "github.com/drblury/relayflow/internal/runtime/errors"
)

// Callback receives the reply payload for one correlation id. It runs at most
// once and is removed from the registry before it is invoked.
type Callback func(ctx context.Context, id string, payload []byte)

// Registry maps pending correlation ids to their callbacks.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Callback
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Callback)}
}

// Register stores cb under id. An id that is still pending cannot be reused.
func (r *Registry) Register(id string, cb Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return errspkg.ErrDuplicateCorrelationID
	}
	r.entries[id] = cb
	return nil
}

// Take removes and returns the callback for id. Only the first caller for a
// given registration gets it.
func (r *Registry) Take(id string) (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return cb, ok
}

// Remove drops the registration for id and reports whether one existed.
func (r *Registry) Remove(id string) bool {
	_, ok := r.Take(id)
	return ok
}

// Len returns the number of pending registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
