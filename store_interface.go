package idemflow

import (
	"context"
	"time"
)

// Storage persists values by idempotency key
type Storage[V any] interface {
	// Get returns the value stored under key. The bool is false on a miss.
	Get(ctx context.Context, key Key) (V, bool, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key Key, value V) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key Key) error
}

// Entry is a stored execution result
type Entry[V any] struct {
	Value       V         `json:"value" dynamodbav:"value"`
	Fingerprint string    `json:"fingerprint,omitempty" dynamodbav:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// ResultStorage is the storage an executor keeps its entries in
type ResultStorage[V any] = Storage[Entry[V]]

// CheckpointStorage persists workflow checkpoints in creation order
type CheckpointStorage interface {
	// Save appends a checkpoint to its workflow's sequence
	Save(ctx context.Context, cp *WorkflowCheckpoint) error

	// Latest returns the most recent checkpoint, or nil when the workflow has none
	Latest(ctx context.Context, workflowID string) (*WorkflowCheckpoint, error)

	// Clear removes every checkpoint of the workflow
	Clear(ctx context.Context, workflowID string) error
}
