package store

// Package store provides storage backends for idempotency results and workflow checkpoints.
// The Storage and CheckpointStorage interfaces are defined in the parent idemflow package
// (../store_interface.go) so engines and backends do not import each other.
//
// This package contains concrete implementations:
//   - MemoryStorage / MemoryCheckpointStorage: in-process maps, for tests and single nodes
//   - CacheStorage: bounded ristretto cache with per-entry TTL
//   - RedisStorage / RedisCheckpointStorage: shared state over go-redis
//   - DynamoDBStorage / DynamoDBCheckpointStorage: durable AWS DynamoDB backend
//
// Schema design follows single-table patterns defined in schema.go.

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a storage backend
type Option func(*options)

type options struct {
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		prefix: "idemflow",
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTTL expires entries after ttl. Zero keeps them until removed.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithKeyPrefix namespaces keys in shared backends
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
