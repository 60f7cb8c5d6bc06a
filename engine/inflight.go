package engine

import (
	"sync"

	"github.com/sicko7947/idemflow"
)

// flight is one in-progress execution. Its result fields are written once,
// before done is closed, and only read after.
type flight[V any] struct {
	done        chan struct{}
	value       V
	err         error
	fingerprint string
}

// registry tracks in-flight executions by key
type registry[V any] struct {
	mu      sync.Mutex
	flights map[idemflow.Key]*flight[V]
}

func newRegistry[V any]() *registry[V] {
	return &registry[V]{
		flights: make(map[idemflow.Key]*flight[V]),
	}
}

// acquire returns the flight for key. The bool is true when the caller created it
// and must release it.
func (r *registry[V]) acquire(key idemflow.Key) (*flight[V], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.flights[key]; ok {
		return f, false
	}

	f := &flight[V]{
		done: make(chan struct{}),
	}
	r.flights[key] = f
	return f, true
}

// release publishes the outcome and wakes every waiter
func (r *registry[V]) release(key idemflow.Key, f *flight[V], value V, fingerprint string, err error) {
	r.mu.Lock()
	if r.flights[key] == f {
		delete(r.flights, key)
	}
	r.mu.Unlock()

	f.value = value
	f.fingerprint = fingerprint
	f.err = err
	close(f.done)
}

// inFlight reports whether key currently has an execution running
func (r *registry[V]) inFlight(key idemflow.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.flights[key]
	return ok
}
