package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

type memoryItem[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryStorage implements idemflow.Storage using an in-memory map
type MemoryStorage[V any] struct {
	items  map[idemflow.Key]memoryItem[V]
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage. Expired entries are dropped lazily on read.
func NewMemoryStorage[V any](opts ...Option) *MemoryStorage[V] {
	o := newOptions(opts)
	return &MemoryStorage[V]{
		items:  make(map[idemflow.Key]memoryItem[V]),
		ttl:    o.ttl,
		now:    o.now,
		logger: o.logger,
	}
}

func (s *MemoryStorage[V]) Get(ctx context.Context, key idemflow.Key) (V, bool, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	s.mu.RLock()
	item, exists := s.items[key]
	s.mu.RUnlock()

	if !exists {
		s.logger.Debug().Str("key", key.String()).Msg("memory storage miss")
		return zero, false, nil
	}

	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		s.mu.Lock()
		if current, ok := s.items[key]; ok && current.expiresAt.Equal(item.expiresAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		s.logger.Debug().Str("key", key.String()).Msg("memory storage entry expired")
		return zero, false, nil
	}

	s.logger.Debug().Str("key", key.String()).Msg("memory storage hit")
	return item.value, true, nil
}

func (s *MemoryStorage[V]) Set(ctx context.Context, key idemflow.Key, value V) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	item := memoryItem[V]{value: value}
	if s.ttl > 0 {
		item.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage[V]) Remove(ctx context.Context, key idemflow.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet dropped
func (s *MemoryStorage[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// MemoryCheckpointStorage implements idemflow.CheckpointStorage using in-memory storage
type MemoryCheckpointStorage struct {
	checkpoints map[string][]*idemflow.WorkflowCheckpoint // workflowID -> checkpoints in save order
	mu          sync.RWMutex
}

// NewMemoryCheckpointStorage creates a new in-memory checkpoint storage
func NewMemoryCheckpointStorage() *MemoryCheckpointStorage {
	return &MemoryCheckpointStorage{
		checkpoints: make(map[string][]*idemflow.WorkflowCheckpoint),
	}
}

func (s *MemoryCheckpointStorage) Save(ctx context.Context, cp *idemflow.WorkflowCheckpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[cp.WorkflowID] = append(s.checkpoints[cp.WorkflowID], cp.Clone())
	return nil
}

func (s *MemoryCheckpointStorage) Latest(ctx context.Context, workflowID string) (*idemflow.WorkflowCheckpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.checkpoints[workflowID]
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1].Clone(), nil
}

func (s *MemoryCheckpointStorage) Clear(ctx context.Context, workflowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, workflowID)
	return nil
}

// List returns copies of every checkpoint of the workflow in save order
func (s *MemoryCheckpointStorage) List(workflowID string) []*idemflow.WorkflowCheckpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.checkpoints[workflowID]
	out := make([]*idemflow.WorkflowCheckpoint, 0, len(list))
	for _, cp := range list {
		out = append(out, cp.Clone())
	}
	return out
}

var (
	_ idemflow.Storage[string]   = (*MemoryStorage[string])(nil)
	_ idemflow.CheckpointStorage = (*MemoryCheckpointStorage)(nil)
)
