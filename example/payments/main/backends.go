package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
	"github.com/sicko7947/idemflow/store"
)

// clients holds the connections shared by every store of one backend
type clients struct {
	cfg    *AppConfig
	logger zerolog.Logger
	redis  *redis.Client
	dynamo *dynamodb.Client
	closer []func()
}

func newClients(ctx context.Context, cfg *AppConfig, logger zerolog.Logger) (*clients, error) {
	c := &clients{cfg: cfg, logger: logger}

	// The cache backend cannot front itself, so "cache" is unknown here
	backend := cfg.durableBackend()
	switch backend {
	case BackendMemory:
	case BackendRedis:
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		c.closer = append(c.closer, func() { _ = c.redis.Close() })
	case BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		c.dynamo = dynamodb.NewFromConfig(awsCfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}

	return c, nil
}

func (c *clients) Close() {
	for _, fn := range c.closer {
		fn()
	}
}

// resultStorage builds the result store for V on the configured backend. The cache
// backend is a bounded L1 in front of the durable store, so evictions never lose a result.
func resultStorage[V any](c *clients) (idemflow.ResultStorage[V], error) {
	durable := durableStorage[idemflow.Entry[V]](c)
	if c.cfg.Backend != BackendCache {
		return durable, nil
	}

	cache, err := store.NewCacheStorage(durable, store.CacheConfig{
		MaxEntries: c.cfg.CacheMaxEntries,
	}, store.WithTTL(c.cfg.Window), store.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.closer = append(c.closer, cache.Close)
	return cache, nil
}

func durableStorage[V any](c *clients) idemflow.Storage[V] {
	opts := []store.Option{
		store.WithTTL(c.cfg.Window),
		store.WithLogger(c.logger),
	}

	switch c.cfg.durableBackend() {
	case BackendRedis:
		opts = append(opts, store.WithKeyPrefix(c.cfg.RedisPrefix))
		return store.NewRedisStorage[V](c.redis, opts...)
	case BackendDynamoDB:
		return store.NewDynamoDBStorage[V](c.dynamo, c.cfg.DynamoDBTable, opts...)
	default:
		return store.NewMemoryStorage[V](opts...)
	}
}

func (c *clients) checkpointStorage() idemflow.CheckpointStorage {
	switch c.cfg.durableBackend() {
	case BackendRedis:
		return store.NewRedisCheckpointStorage(c.redis,
			store.WithKeyPrefix(c.cfg.RedisPrefix),
			store.WithLogger(c.logger),
		)
	case BackendDynamoDB:
		return store.NewDynamoDBCheckpointStorage(c.dynamo, c.cfg.DynamoDBTable)
	default:
		return store.NewMemoryCheckpointStorage()
	}
}
