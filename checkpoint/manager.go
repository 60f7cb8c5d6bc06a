package checkpoint

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sicko7947/idemflow"
)

// Manager creates, finds and clears workflow checkpoints
type Manager struct {
	storage  idemflow.CheckpointStorage
	strategy idemflow.CheckpointStrategy
	options

	mu    sync.Mutex
	locks map[string]*workflowLock
}

type workflowLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a checkpoint manager bound to strategy
func NewManager(storage idemflow.CheckpointStorage, strategy idemflow.CheckpointStrategy, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Manager{
		storage:  storage,
		strategy: strategy,
		options:  o,
		locks:    make(map[string]*workflowLock),
	}
}

// Strategy returns the strategy drivers should consult
func (m *Manager) Strategy() idemflow.CheckpointStrategy {
	return m.strategy
}

// lock serialises checkpoint writes for one workflow
func (m *Manager) lock(workflowID string) func() {
	m.mu.Lock()
	l, ok := m.locks[workflowID]
	if !ok {
		l = &workflowLock{}
		m.locks[workflowID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, workflowID)
		}
		m.mu.Unlock()
	}
}

// CreateCheckpoint validates cp against the latest checkpoint of its workflow and persists it.
// Missing CheckpointID, CreatedAt and State are filled in. The stored checkpoint is returned.
func (m *Manager) CreateCheckpoint(ctx context.Context, cp *idemflow.WorkflowCheckpoint) (*idemflow.WorkflowCheckpoint, error) {
	if cp == nil {
		return nil, idemflow.NewValidationError("checkpoint must not be nil")
	}
	if strings.TrimSpace(cp.WorkflowID) == "" {
		return nil, idemflow.NewValidationError("checkpoint workflow id must not be empty")
	}

	next := cp.Clone()
	next.Normalize()

	if next.State == "" {
		next.State = idemflow.WorkflowStateRunning
	}
	if !next.State.IsValid() {
		return nil, idemflow.NewValidationError("unknown workflow state " + next.State.String())
	}

	unlock := m.lock(next.WorkflowID)
	defer unlock()

	// Identity is assigned under the lock so generated ids sort in save order
	if next.CheckpointID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, idemflow.NewUnexpectedError("failed to generate checkpoint id", err)
		}
		next.CheckpointID = id.String()
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = m.now().UTC()
	}

	latest, err := m.storage.Latest(ctx, next.WorkflowID)
	if err != nil {
		idemflow.LogStorageError(m.logger, "latest", err)
		return nil, idemflow.AsStorageError("latest", err)
	}

	if err := validateSuccessor(latest, next); err != nil {
		idemflow.LogCheckpointRejected(m.logger, next.WorkflowID, err)
		m.metrics.Count(idemflow.MetricCheckpoint, 1, "result:rejected")
		return nil, err
	}

	if err := m.storage.Save(ctx, next); err != nil {
		idemflow.LogStorageError(m.logger, "save", err)
		return nil, idemflow.AsStorageError("save", err)
	}

	idemflow.LogCheckpointCreated(m.logger, next)
	m.metrics.Count(idemflow.MetricCheckpoint, 1, "result:created", "state:"+next.State.String())
	return next, nil
}

// validateSuccessor rejects a checkpoint that would move progress backwards
func validateSuccessor(latest, next *idemflow.WorkflowCheckpoint) error {
	if latest == nil {
		return nil
	}
	if !next.Covers(latest) {
		return idemflow.NewValidationError("checkpoint drops nodes completed by checkpoint " + latest.CheckpointID)
	}
	if next.CreatedAt.Before(latest.CreatedAt) {
		return idemflow.NewValidationError("checkpoint is older than checkpoint " + latest.CheckpointID)
	}
	// Backends that sort by time break ties on the checkpoint id
	if next.CreatedAt.Equal(latest.CreatedAt) && next.CheckpointID <= latest.CheckpointID {
		return idemflow.NewValidationError("checkpoint created at the same time as checkpoint " +
			latest.CheckpointID + " must have a greater id")
	}
	return nil
}

// FindLatestCheckpoint returns the most recent checkpoint of the workflow, or nil
func (m *Manager) FindLatestCheckpoint(ctx context.Context, workflowID string) (*idemflow.WorkflowCheckpoint, error) {
	cp, err := m.storage.Latest(ctx, workflowID)
	if err != nil {
		idemflow.LogStorageError(m.logger, "latest", err)
		return nil, idemflow.AsStorageError("latest", err)
	}
	return cp, nil
}

// ResumeFromCheckpoint turns cp into an independent resume state
func (m *Manager) ResumeFromCheckpoint(cp *idemflow.WorkflowCheckpoint) (*idemflow.ResumeState, error) {
	if cp == nil {
		return nil, idemflow.NewValidationError("cannot resume from a nil checkpoint")
	}

	state := idemflow.NewResumeState(cp)
	idemflow.LogCheckpointResumed(m.logger, cp.WorkflowID, cp.CheckpointID, len(state.CompletedNodes))
	return state, nil
}

// ResumeLatest resumes from the latest checkpoint, returning nil when the workflow has none
func (m *Manager) ResumeLatest(ctx context.Context, workflowID string) (*idemflow.ResumeState, error) {
	cp, err := m.FindLatestCheckpoint(ctx, workflowID)
	if err != nil || cp == nil {
		return nil, err
	}
	return m.ResumeFromCheckpoint(cp)
}

// ClearCheckpoints removes every checkpoint of the workflow
func (m *Manager) ClearCheckpoints(ctx context.Context, workflowID string) error {
	unlock := m.lock(workflowID)
	defer unlock()

	if err := m.storage.Clear(ctx, workflowID); err != nil {
		idemflow.LogStorageError(m.logger, "clear", err)
		return idemflow.AsStorageError("clear", err)
	}

	idemflow.LogCheckpointCleared(m.logger, workflowID)
	return nil
}
