package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sicko7947/idemflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisClient implements RedisClient over maps for testing
type fakeRedisClient struct {
	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string
	ttls    map[string]time.Duration
	err     error
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
		ttls:    make(map[string]time.Duration),
	}
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.strings[key] = toString(value)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.strings[key]; ok {
			delete(f.strings, key)
			n++
		}
		if _, ok := f.lists[key]; ok {
			delete(f.lists, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedisClient) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], toString(v))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedisClient) LIndex(ctx context.Context, key string, index int64) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	list := f.lists[key]
	if index < 0 {
		index += int64(len(list))
	}
	if index < 0 || index >= int64(len(list)) {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(list[index], nil)
}

func TestRedisStorage_SetGetRemove(t *testing.T) {
	client := newFakeRedisClient()
	s := NewRedisStorage[idemflow.Entry[int]](client, WithTTL(time.Minute), WithKeyPrefix("test"))
	ctx := context.Background()

	_, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, "k1", idemflow.Entry[int]{Value: 3, Fingerprint: "fp", CreatedAt: createdAt}))

	assert.Contains(t, client.strings, "test:result:k1")
	assert.Equal(t, time.Minute, client.ttls["test:result:k1"])

	got, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got.Value)
	assert.Equal(t, "fp", got.Fingerprint)
	assert.True(t, createdAt.Equal(got.CreatedAt))

	require.NoError(t, s.Remove(ctx, "k1"))
	_, found, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStorage_Errors(t *testing.T) {
	client := newFakeRedisClient()
	client.err = errors.New("connection refused")
	s := NewRedisStorage[int](client)
	ctx := context.Background()

	_, _, err := s.Get(ctx, "k1")
	assert.True(t, idemflow.IsStorageError(err))
	assert.True(t, idemflow.IsStorageError(s.Set(ctx, "k1", 1)))
	assert.True(t, idemflow.IsStorageError(s.Remove(ctx, "k1")))
}

func TestRedisStorage_CorruptValue(t *testing.T) {
	client := newFakeRedisClient()
	client.strings["idemflow:result:k1"] = "not json"
	s := NewRedisStorage[int](client)

	_, found, err := s.Get(context.Background(), "k1")
	assert.False(t, found)
	assert.True(t, idemflow.IsStorageError(err))
}

func TestRedisCheckpointStorage(t *testing.T) {
	client := newFakeRedisClient()
	s := NewRedisCheckpointStorage(client)
	ctx := context.Background()

	latest, err := s.Latest(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Save(ctx, &idemflow.WorkflowCheckpoint{
			WorkflowID:     "wf-1",
			CheckpointID:   fmt.Sprintf("cp-%d", i),
			CompletedNodes: []string{"a"},
			State:          idemflow.WorkflowStateRunning,
		}))
	}
	assert.Len(t, client.lists["idemflow:checkpoints:wf-1"], 3)

	latest, err = s.Latest(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "cp-3", latest.CheckpointID)
	assert.Equal(t, []string{"a"}, latest.CompletedNodes)

	require.NoError(t, s.Clear(ctx, "wf-1"))
	latest, err = s.Latest(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRedisCheckpointStorage_Errors(t *testing.T) {
	client := newFakeRedisClient()
	client.err = errors.New("connection refused")
	s := NewRedisCheckpointStorage(client)
	ctx := context.Background()

	assert.True(t, idemflow.IsStorageError(s.Save(ctx, &idemflow.WorkflowCheckpoint{WorkflowID: "wf-1"})))
	_, err := s.Latest(ctx, "wf-1")
	assert.True(t, idemflow.IsStorageError(err))
	assert.True(t, idemflow.IsStorageError(s.Clear(ctx, "wf-1")))
}
