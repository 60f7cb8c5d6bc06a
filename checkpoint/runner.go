package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sicko7947/idemflow"
)

// Result summarises one Run
type Result struct {
	WorkflowID   string
	State        idemflow.WorkflowState
	CheckpointID string

	// Resumed is true when the run continued from an earlier checkpoint
	Resumed  bool
	Executed []string
	Skipped  []string

	Outputs   map[string]json.RawMessage
	Variables map[string]json.RawMessage
}

// Output decodes the output of stepID from a result
func Output[T any](r *Result, stepID string) (T, error) {
	var zero T
	raw, ok := r.Outputs[stepID]
	if !ok {
		return zero, fmt.Errorf("output of step %s: %w", stepID, ErrNotFound)
	}
	return idemflow.DecodeRaw[T](raw)
}

// Runner executes ordered steps, checkpointing through a Manager
type Runner struct {
	manager *Manager
	options
}

// NewRunner creates a runner. Options default to the manager's.
func NewRunner(manager *Manager, opts ...Option) *Runner {
	r := &Runner{
		manager: manager,
		options: manager.options,
	}
	for _, opt := range opts {
		opt(&r.options)
	}
	return r
}

type run struct {
	workflowID       string
	progress         *progress
	lastCheckpointAt time.Time
	result           *Result
}

// Run executes steps in order for workflowID. Steps completed by the latest checkpoint are
// skipped. A terminal checkpoint is written when the run completes or a step fails.
func (r *Runner) Run(ctx context.Context, workflowID string, steps ...StepExecutor) (*Result, error) {
	if strings.TrimSpace(workflowID) == "" {
		return nil, idemflow.NewValidationError("workflow id must not be empty")
	}
	if err := r.manager.Strategy().Validate(); err != nil {
		return nil, err
	}
	if err := validateSteps(steps); err != nil {
		return nil, err
	}

	latest, err := r.manager.FindLatestCheckpoint(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	wr := &run{
		workflowID: workflowID,
		result:     &Result{WorkflowID: workflowID, State: idemflow.WorkflowStateRunning},
	}

	var resume *idemflow.ResumeState
	if latest != nil {
		resume, err = r.manager.ResumeFromCheckpoint(latest)
		if err != nil {
			return nil, err
		}
		wr.lastCheckpointAt = latest.CreatedAt
		wr.result.Resumed = true
		wr.result.CheckpointID = latest.CheckpointID
	}
	wr.progress = newProgress(resume)

	if latest != nil && latest.State == idemflow.WorkflowStateCompleted {
		wr.result.State = idemflow.WorkflowStateCompleted
		wr.fillResult()
		return wr.result, nil
	}

	strategy := r.manager.Strategy()

	for _, step := range steps {
		stepID := step.GetID()

		if wr.progress.isCompleted(stepID) {
			idemflow.LogStepSkipped(r.logger, workflowID, stepID, "completed before checkpoint")
			wr.result.Skipped = append(wr.result.Skipped, stepID)
			continue
		}

		if err := ctx.Err(); err != nil {
			return r.fail(ctx, wr, err)
		}

		output, err := r.executeStep(ctx, wr, step)
		if err != nil {
			return r.fail(ctx, wr, err)
		}

		wr.progress.complete(stepID, output)
		wr.result.Executed = append(wr.result.Executed, stepID)

		decision := idemflow.Decision{Node: stepID, LastCheckpointAt: wr.lastCheckpointAt, Now: r.now()}
		if strategy.ShouldCheckpoint(decision) {
			if err := r.checkpoint(ctx, wr, idemflow.WorkflowStateRunning); err != nil {
				return wr.result, err
			}
		}
	}

	if err := r.checkpoint(ctx, wr, idemflow.WorkflowStateCompleted); err != nil {
		return wr.result, err
	}

	wr.result.State = idemflow.WorkflowStateCompleted
	wr.fillResult()
	return wr.result, nil
}

func validateSteps(steps []StepExecutor) error {
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if step == nil {
			return idemflow.NewValidationError("step must not be nil")
		}
		id := step.GetID()
		if id == "" {
			return idemflow.NewValidationError("step id must not be empty")
		}
		if _, ok := seen[id]; ok {
			return idemflow.NewValidationError("duplicate step id " + id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// fail records a FAILED checkpoint with the progress so far and returns cause
func (r *Runner) fail(ctx context.Context, wr *run, cause error) (*Result, error) {
	// Cancellation of the run must not prevent the terminal checkpoint
	if err := r.checkpoint(context.WithoutCancel(ctx), wr, idemflow.WorkflowStateFailed); err != nil {
		r.logger.Error().
			Str("workflow_id", wr.workflowID).
			Err(err).
			Msg("Failed to record failed checkpoint")
	}

	wr.result.State = idemflow.WorkflowStateFailed
	wr.fillResult()
	return wr.result, cause
}

func (r *Runner) checkpoint(ctx context.Context, wr *run, state idemflow.WorkflowState) error {
	cp, err := r.manager.CreateCheckpoint(ctx, wr.progress.snapshot(wr.workflowID, state))
	if err != nil {
		return err
	}
	wr.lastCheckpointAt = cp.CreatedAt
	wr.result.CheckpointID = cp.CheckpointID
	return nil
}

func (wr *run) fillResult() {
	cp := wr.progress.snapshot(wr.workflowID, wr.result.State)
	wr.result.Outputs = cp.NodeOutputs
	wr.result.Variables = cp.Variables
}

// executeStep runs a single step with retry/timeout logic
func (r *Runner) executeStep(ctx context.Context, wr *run, step StepExecutor) (json.RawMessage, error) {
	config := step.GetConfig()
	stepID := step.GetID()

	var lastErr error
	attemptsMade := 0

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		attemptsMade = attempt + 1

		if attempt > 0 {
			delay := idemflow.CalculateBackoff(config.RetryDelay, attempt, config.RetryBackoff)
			idemflow.LogStepRetrying(r.logger, wr.workflowID, stepID, attempt, delay)
			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		idemflow.LogStepStarted(r.logger, wr.workflowID, stepID, attempt)

		execCtx, cancel := ctx, context.CancelFunc(func() {})
		if config.Timeout > 0 {
			execCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		}

		stepCtx := &StepContext{
			Context:    execCtx,
			WorkflowID: wr.workflowID,
			StepID:     stepID,
			Attempt:    attempt,
			Logger:     idemflow.StepLogger(r.logger, wr.workflowID, stepID, attempt),
			progress:   wr.progress,
		}

		start := r.now()
		output, err := executeSafely(stepCtx, step)
		duration := r.now().Sub(start)

		timedOut := config.Timeout > 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			idemflow.LogStepCompleted(r.logger, wr.workflowID, stepID, duration)
			return output, nil
		}

		if timedOut {
			err = fmt.Errorf("step timed out after %s: %w", config.Timeout, err)
		}
		lastErr = err
		idemflow.LogStepFailed(r.logger, wr.workflowID, stepID, err, attempt)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("step %s failed after %d attempts: %w", stepID, attemptsMade, lastErr)
}

// executeSafely runs the step, converting a panic into an error
func executeSafely(ctx *StepContext, step StepExecutor) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()
	return step.Execute(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
