package idemflow

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	// Execution events
	EventIdempotencyHit  = "idempotency_hit"
	EventIdempotencyMiss = "idempotency_miss"
	EventActionExecuted  = "action_executed"
	EventActionFailed    = "action_failed"
	EventResultStored    = "result_stored"
	EventInflightWait    = "inflight_wait"
	EventInflightTimeout = "inflight_timeout"
	EventInputMismatch   = "input_mismatch"
	EventResultMerged    = "result_merged"

	// Checkpoint events
	EventCheckpointCreated  = "checkpoint_created"
	EventCheckpointRejected = "checkpoint_rejected"
	EventCheckpointResumed  = "checkpoint_resumed"
	EventCheckpointCleared  = "checkpoint_cleared"

	// Step events
	EventStepStarted   = "step_started"
	EventStepRetrying  = "step_retrying"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"

	// Persistence events
	EventStorageError = "storage_error"
)

// DefaultLogger is the console logger components fall back to
func DefaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

// LogIdempotencyHit logs a call answered from storage
func LogIdempotencyHit(logger zerolog.Logger, key Key, level Level) {
	logger.Debug().
		Str("event", EventIdempotencyHit).
		Str("key", key.String()).
		Str("level", level.String()).
		Msg("Idempotency hit")
}

// LogIdempotencyMiss logs a call that has to execute
func LogIdempotencyMiss(logger zerolog.Logger, key Key, level Level) {
	logger.Debug().
		Str("event", EventIdempotencyMiss).
		Str("key", key.String()).
		Str("level", level.String()).
		Msg("Idempotency miss")
}

// LogActionExecuted logs a successful execution
func LogActionExecuted(logger zerolog.Logger, key Key, level Level, duration time.Duration) {
	logger.Info().
		Str("event", EventActionExecuted).
		Str("key", key.String()).
		Str("level", level.String()).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("Action executed")
}

// LogActionFailed logs a failed execution
func LogActionFailed(logger zerolog.Logger, key Key, level Level, err error) {
	logger.Error().
		Str("event", EventActionFailed).
		Str("key", key.String()).
		Str("level", level.String()).
		Err(err).
		Msg("Action failed")
}

// LogResultStored logs a persisted result
func LogResultStored(logger zerolog.Logger, key Key) {
	logger.Debug().
		Str("event", EventResultStored).
		Str("key", key.String()).
		Msg("Result stored")
}

// LogInflightWait logs a caller joining an in-flight execution
func LogInflightWait(logger zerolog.Logger, key Key, behavior ConflictKind) {
	logger.Debug().
		Str("event", EventInflightWait).
		Str("key", key.String()).
		Str("behavior", string(behavior)).
		Msg("Waiting for in-flight execution")
}

// LogInflightTimeout logs a waiter giving up
func LogInflightTimeout(logger zerolog.Logger, key Key, timeout time.Duration) {
	logger.Warn().
		Str("event", EventInflightTimeout).
		Str("key", key.String()).
		Dur("timeout", timeout).
		Msg("In-flight wait timed out")
}

// LogInputMismatch logs a key reused with a different input
func LogInputMismatch(logger zerolog.Logger, key Key, rejected bool) {
	logger.Warn().
		Str("event", EventInputMismatch).
		Str("key", key.String()).
		Bool("rejected", rejected).
		Msg("Idempotency key reused with different input")
}

// LogResultMerged logs a stored result updated by a merge
func LogResultMerged(logger zerolog.Logger, key Key) {
	logger.Info().
		Str("event", EventResultMerged).
		Str("key", key.String()).
		Msg("Result merged")
}

// LogCheckpointCreated logs a persisted checkpoint
func LogCheckpointCreated(logger zerolog.Logger, cp *WorkflowCheckpoint) {
	logger.Info().
		Str("event", EventCheckpointCreated).
		Str("workflow_id", cp.WorkflowID).
		Str("checkpoint_id", cp.CheckpointID).
		Str("state", cp.State.String()).
		Int("completed_nodes", len(cp.CompletedNodes)).
		Msg("Checkpoint created")
}

// LogCheckpointRejected logs a checkpoint refused by validation
func LogCheckpointRejected(logger zerolog.Logger, workflowID string, err error) {
	logger.Warn().
		Str("event", EventCheckpointRejected).
		Str("workflow_id", workflowID).
		Err(err).
		Msg("Checkpoint rejected")
}

// LogCheckpointResumed logs a workflow picking up from a checkpoint
func LogCheckpointResumed(logger zerolog.Logger, workflowID, checkpointID string, completed int) {
	logger.Info().
		Str("event", EventCheckpointResumed).
		Str("workflow_id", workflowID).
		Str("checkpoint_id", checkpointID).
		Int("completed_nodes", completed).
		Msg("Resuming from checkpoint")
}

// LogCheckpointCleared logs removal of a workflow's checkpoints
func LogCheckpointCleared(logger zerolog.Logger, workflowID string) {
	logger.Info().
		Str("event", EventCheckpointCleared).
		Str("workflow_id", workflowID).
		Msg("Checkpoints cleared")
}

// LogStepStarted logs when a step starts execution
func LogStepStarted(logger zerolog.Logger, workflowID, stepID string, attempt int) {
	logger.Info().
		Str("event", EventStepStarted).
		Str("workflow_id", workflowID).
		Str("step_id", stepID).
		Int("attempt", attempt).
		Msg("Step started")
}

// LogStepRetrying logs when a step is being retried
func LogStepRetrying(logger zerolog.Logger, workflowID, stepID string, attempt int, delay time.Duration) {
	logger.Warn().
		Str("event", EventStepRetrying).
		Str("workflow_id", workflowID).
		Str("step_id", stepID).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Step retrying")
}

// LogStepCompleted logs successful step completion
func LogStepCompleted(logger zerolog.Logger, workflowID, stepID string, duration time.Duration) {
	logger.Info().
		Str("event", EventStepCompleted).
		Str("workflow_id", workflowID).
		Str("step_id", stepID).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("Step completed")
}

// LogStepFailed logs step failure
func LogStepFailed(logger zerolog.Logger, workflowID, stepID string, err error, attempt int) {
	logger.Error().
		Str("event", EventStepFailed).
		Str("workflow_id", workflowID).
		Str("step_id", stepID).
		Err(err).
		Int("attempt", attempt).
		Msg("Step failed")
}

// LogStepSkipped logs a step already covered by a checkpoint
func LogStepSkipped(logger zerolog.Logger, workflowID, stepID, reason string) {
	logger.Info().
		Str("event", EventStepSkipped).
		Str("workflow_id", workflowID).
		Str("step_id", stepID).
		Str("reason", reason).
		Msg("Step skipped")
}

// LogStorageError logs errors during persistence operations
func LogStorageError(logger zerolog.Logger, operation string, err error) {
	logger.Error().
		Str("event", EventStorageError).
		Str("operation", operation).
		Err(err).
		Msg("Storage error")
}

// StepLogger creates a logger enriched with step context
func StepLogger(baseLogger zerolog.Logger, workflowID, stepID string, attempt int) zerolog.Logger {
	return baseLogger.With().
		Str("workflow_id", workflowID).
		Str("step_id", stepID).
		Int("attempt", attempt).
		Logger()
}
