package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

// RedisStorage implements idemflow.Storage using Redis.
// Values are JSON-encoded under <prefix>:result:<key> and expire natively when a TTL is set.
type RedisStorage[V any] struct {
	client RedisClient
	opts   options
	logger zerolog.Logger
}

// NewRedisStorage creates a new Redis-backed storage
func NewRedisStorage[V any](client RedisClient, opts ...Option) *RedisStorage[V] {
	o := newOptions(opts)
	return &RedisStorage[V]{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

func (s *RedisStorage[V]) Get(ctx context.Context, key idemflow.Key) (V, bool, error) {
	var zero V

	data, err := s.client.Get(ctx, redisResultKey(s.opts.prefix, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug().Str("key", key.String()).Msg("redis storage miss")
		return zero, false, nil
	}
	if err != nil {
		return zero, false, idemflow.NewStorageError("get", err).WithKey(key)
	}

	value, err := decodeValue[V](data)
	if err != nil {
		return zero, false, idemflow.NewStorageError("get", err).WithKey(key)
	}

	s.logger.Debug().Str("key", key.String()).Msg("redis storage hit")
	return value, true, nil
}

func (s *RedisStorage[V]) Set(ctx context.Context, key idemflow.Key, value V) error {
	data, err := encodeValue(value)
	if err != nil {
		return idemflow.NewStorageError("set", err).WithKey(key)
	}

	if err := s.client.Set(ctx, redisResultKey(s.opts.prefix, key), data, s.opts.ttl).Err(); err != nil {
		return idemflow.NewStorageError("set", err).WithKey(key)
	}
	return nil
}

func (s *RedisStorage[V]) Remove(ctx context.Context, key idemflow.Key) error {
	if err := s.client.Del(ctx, redisResultKey(s.opts.prefix, key)).Err(); err != nil {
		return idemflow.NewStorageError("remove", err).WithKey(key)
	}
	return nil
}

// RedisCheckpointStorage implements idemflow.CheckpointStorage with one Redis list per workflow
type RedisCheckpointStorage struct {
	client RedisClient
	prefix string
}

// NewRedisCheckpointStorage creates a new Redis-backed checkpoint storage
func NewRedisCheckpointStorage(client RedisClient, opts ...Option) *RedisCheckpointStorage {
	o := newOptions(opts)
	return &RedisCheckpointStorage{
		client: client,
		prefix: o.prefix,
	}
}

func (s *RedisCheckpointStorage) Save(ctx context.Context, cp *idemflow.WorkflowCheckpoint) error {
	data, err := encodeValue(cp)
	if err != nil {
		return idemflow.NewStorageError("save checkpoint", err)
	}

	if err := s.client.RPush(ctx, redisCheckpointKey(s.prefix, cp.WorkflowID), data).Err(); err != nil {
		return idemflow.NewStorageError("save checkpoint", fmt.Errorf("workflow %s: %w", cp.WorkflowID, err))
	}
	return nil
}

func (s *RedisCheckpointStorage) Latest(ctx context.Context, workflowID string) (*idemflow.WorkflowCheckpoint, error) {
	data, err := s.client.LIndex(ctx, redisCheckpointKey(s.prefix, workflowID), -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, idemflow.NewStorageError("latest checkpoint", fmt.Errorf("workflow %s: %w", workflowID, err))
	}

	cp, err := decodeValue[*idemflow.WorkflowCheckpoint](data)
	if err != nil {
		return nil, idemflow.NewStorageError("latest checkpoint", err)
	}
	return cp, nil
}

func (s *RedisCheckpointStorage) Clear(ctx context.Context, workflowID string) error {
	if err := s.client.Del(ctx, redisCheckpointKey(s.prefix, workflowID)).Err(); err != nil {
		return idemflow.NewStorageError("clear checkpoints", fmt.Errorf("workflow %s: %w", workflowID, err))
	}
	return nil
}

var (
	_ idemflow.Storage[string]   = (*RedisStorage[string])(nil)
	_ idemflow.CheckpointStorage = (*RedisCheckpointStorage)(nil)
)
