// Package session holds the in-memory session registries. One registry
// exists per backend kind; entries live until an explicit disconnect or
// process exit. There is no persistence across restarts and no expiry —
// acceptable for a single-operator deployment, revisit before anything
// multi-tenant.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps opaque session ids to adapter-specific connection state.
// Reads (list/resolve lookups) vastly outnumber writes (connect and
// disconnect), so a sync.Map fits the access pattern without locking.
type Registry[S any] struct {
	kind string
	m    sync.Map
}

// NewRegistry creates a registry whose ids carry the given kind prefix.
func NewRegistry[S any](kind string) *Registry[S] {
	return &Registry[S]{kind: kind}
}

// Add stores state under a fresh process-unique id and returns the id.
// Ids are kind-prefixed so a handle can never be replayed against a
// different backend kind's registry.
func (r *Registry[S]) Add(state S) string {
	id := r.kind + "-" + uuid.NewString()
	r.m.Store(id, state)
	return id
}

// Get returns the state for id, or false for unknown/disconnected ids.
func (r *Registry[S]) Get(id string) (S, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		var zero S
		return zero, false
	}
	return v.(S), true
}

// Replace atomically swaps the state for an existing id, for backends that
// refresh a credential mid-session. No-op for unknown ids.
func (r *Registry[S]) Replace(id string, state S) {
	if _, ok := r.m.Load(id); ok {
		r.m.Store(id, state)
	}
}

// Remove forgets the session. Idempotent.
func (r *Registry[S]) Remove(id string) {
	r.m.Delete(id)
}

// Len counts live sessions. Used by tests and the health endpoint.
func (r *Registry[S]) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
