package engine

import (
	"context"

	"github.com/sicko7947/idemflow"
)

// RequestFunc is ad hoc work deduplicated by a RequestManager
type RequestFunc[V any] func(ctx context.Context) (V, error)

// RequestManager deduplicates closures by key, for request handlers that have no Action type
type RequestManager[V any] struct {
	core *dedup[V]
}

// NewRequestManager creates a request manager with cfg backed by storage
func NewRequestManager[V any](storage idemflow.ResultStorage[V], cfg idemflow.Config, opts ...Option) *RequestManager[V] {
	return &RequestManager[V]{
		core: newDedup(storage, cfg, newOptions(opts)),
	}
}

// Config returns the config the manager was built with
func (m *RequestManager[V]) Config() idemflow.Config {
	return m.core.cfg
}

// Execute returns the stored result for key, or runs fn and stores its result
func (m *RequestManager[V]) Execute(ctx context.Context, key idemflow.Key, fn RequestFunc[V]) (V, error) {
	return m.core.do(ctx, call[V]{key: key, run: fn})
}

// ExecuteWithInput is Execute with input fingerprinted, so a reused key with a different input
// is detected according to the input mismatch policy
func (m *RequestManager[V]) ExecuteWithInput(ctx context.Context, key idemflow.Key, input any, fn RequestFunc[V]) (V, error) {
	fingerprint, err := fingerprintOf(input)
	if err != nil {
		var zero V
		return zero, err
	}
	return m.core.do(ctx, call[V]{key: key, fingerprint: fingerprint, run: fn})
}

// ExecuteWithFingerprint is Execute with a precomputed input fingerprint
func (m *RequestManager[V]) ExecuteWithFingerprint(ctx context.Context, key idemflow.Key, fingerprint string, fn RequestFunc[V]) (V, error) {
	return m.core.do(ctx, call[V]{key: key, fingerprint: fingerprint, run: fn})
}
