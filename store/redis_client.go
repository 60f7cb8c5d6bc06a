package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient defines the Redis commands used by the store.
// Both *redis.Client and cluster/failover clients satisfy it, and tests can mock it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LIndex(ctx context.Context, key string, index int64) *redis.StringCmd
}

// Verify that the real Redis clients implement our interface
var (
	_ RedisClient = (*redis.Client)(nil)
	_ RedisClient = (redis.UniversalClient)(nil)
)
