package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

// CacheConfig sizes a CacheStorage
type CacheConfig struct {
	// MaxEntries bounds the number of cached entries
	MaxEntries int64
	// BufferItems is ristretto's Get buffer size
	BufferItems int64
}

// DefaultCacheConfig provides sensible defaults
var DefaultCacheConfig = CacheConfig{
	MaxEntries:  100_000,
	BufferItems: 64,
}

// CacheStorage implements idemflow.Storage as a bounded ristretto cache in front of a
// durable store. Reads fall back to the inner store on a cache miss and refill the cache;
// writes and removals go to the inner store first. Entries the cache evicts are still
// answered by the inner store.
type CacheStorage[V any] struct {
	inner  idemflow.Storage[V]
	cache  *ristretto.Cache
	prefix string
	opts   options
	logger zerolog.Logger
}

// NewCacheStorage creates a ristretto cache over inner. Every entry costs 1 against MaxEntries.
func NewCacheStorage[V any](inner idemflow.Storage[V], cfg CacheConfig, opts ...Option) (*CacheStorage[V], error) {
	if inner == nil {
		return nil, idemflow.NewStorageError("init cache", errors.New("cache needs an inner storage"))
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = DefaultCacheConfig.BufferItems
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        10 * cfg.MaxEntries,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        cfg.BufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, idemflow.NewStorageError("init cache", err)
	}

	o := newOptions(opts)
	return &CacheStorage[V]{
		inner:  inner,
		cache:  cache,
		prefix: o.prefix,
		opts:   o,
		logger: o.logger,
	}, nil
}

func (s *CacheStorage[V]) cacheKey(key idemflow.Key) string {
	return s.prefix + ":" + key.String()
}

func (s *CacheStorage[V]) Get(ctx context.Context, key idemflow.Key) (V, bool, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	if raw, found := s.cache.Get(s.cacheKey(key)); found {
		if value, ok := raw.(V); ok {
			s.logger.Debug().Str("key", key.String()).Msg("cache storage hit")
			return value, true, nil
		}
		s.cache.Del(s.cacheKey(key))
	}

	value, found, err := s.inner.Get(ctx, key)
	if err != nil || !found {
		s.logger.Debug().Str("key", key.String()).Msg("cache storage miss")
		return zero, false, err
	}

	s.fill(key, value)
	return value, true, nil
}

// Set writes value to the inner store, then caches it
func (s *CacheStorage[V]) Set(ctx context.Context, key idemflow.Key, value V) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.inner.Set(ctx, key, value); err != nil {
		// Drop the cached copy so it cannot outlive a value the inner store may not hold
		s.cache.Del(s.cacheKey(key))
		return err
	}

	s.fill(key, value)
	return nil
}

func (s *CacheStorage[V]) Remove(ctx context.Context, key idemflow.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.inner.Remove(ctx, key); err != nil {
		return err
	}
	s.cache.Del(s.cacheKey(key))
	return nil
}

// fill caches value and waits for the write buffer to drain so a following Get observes it.
// A rejected admission only means the next Get reads through.
func (s *CacheStorage[V]) fill(key idemflow.Key, value V) {
	var admitted bool
	if s.opts.ttl > 0 {
		admitted = s.cache.SetWithTTL(s.cacheKey(key), value, 1, s.opts.ttl)
	} else {
		admitted = s.cache.Set(s.cacheKey(key), value, 1)
	}
	if !admitted {
		s.cache.Del(s.cacheKey(key))
		s.logger.Debug().Str("key", key.String()).Msg("cache storage admission rejected")
		return
	}
	s.cache.Wait()
}

// Close releases the cache's background goroutines. The inner store is not closed.
func (s *CacheStorage[V]) Close() {
	s.cache.Close()
}

var _ idemflow.Storage[string] = (*CacheStorage[string])(nil)
