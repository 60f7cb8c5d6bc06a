package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

// ErrNotFound is returned when a step output or variable does not exist
var ErrNotFound = errors.New("not found")

// StepContext provides rich context to step handlers
type StepContext struct {
	context.Context

	// Execution metadata
	WorkflowID string
	StepID     string
	Attempt    int

	// Logger (enriched with step context)
	Logger zerolog.Logger

	progress *progress
}

// GetOutput decodes the output of an earlier step
func GetOutput[T any](ctx *StepContext, stepID string) (T, error) {
	var zero T
	raw, ok := ctx.progress.output(stepID)
	if !ok {
		return zero, fmt.Errorf("output of step %s: %w", stepID, ErrNotFound)
	}
	return idemflow.DecodeRaw[T](raw)
}

// HasOutput reports whether stepID has produced output
func (c *StepContext) HasOutput(stepID string) bool {
	_, ok := c.progress.output(stepID)
	return ok
}

// GetVar decodes a workflow variable
func GetVar[T any](ctx *StepContext, key string) (T, error) {
	var zero T
	raw, ok := ctx.progress.variable(key)
	if !ok {
		return zero, fmt.Errorf("variable %s: %w", key, ErrNotFound)
	}
	return idemflow.DecodeRaw[T](raw)
}

// SetVar stores a workflow variable. Variables are carried in checkpoints.
func (c *StepContext) SetVar(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal variable %s: %w", key, err)
	}
	c.progress.setVariable(key, data)
	return nil
}

// DeleteVar removes a workflow variable
func (c *StepContext) DeleteVar(key string) {
	c.progress.deleteVariable(key)
}

// progress is the mutable state of one run, seeded from a resume state
type progress struct {
	mu        sync.RWMutex
	completed map[string]struct{}
	outputs   map[string]json.RawMessage
	variables map[string]json.RawMessage
}

func newProgress(resume *idemflow.ResumeState) *progress {
	p := &progress{
		completed: make(map[string]struct{}),
		outputs:   make(map[string]json.RawMessage),
		variables: make(map[string]json.RawMessage),
	}
	if resume != nil {
		maps.Copy(p.completed, resume.CompletedNodes)
		maps.Copy(p.outputs, resume.NodeOutputs)
		maps.Copy(p.variables, resume.Variables)
	}
	return p
}

func (p *progress) isCompleted(stepID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.completed[stepID]
	return ok
}

func (p *progress) complete(stepID string, output json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[stepID] = struct{}{}
	p.outputs[stepID] = output
}

func (p *progress) output(stepID string) (json.RawMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	raw, ok := p.outputs[stepID]
	return raw, ok
}

func (p *progress) variable(key string) (json.RawMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	raw, ok := p.variables[key]
	return raw, ok
}

func (p *progress) setVariable(key string, data json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.variables[key] = data
}

func (p *progress) deleteVariable(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.variables, key)
}

// snapshot builds a checkpoint of the current progress
func (p *progress) snapshot(workflowID string, state idemflow.WorkflowState) *idemflow.WorkflowCheckpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return &idemflow.WorkflowCheckpoint{
		WorkflowID:     workflowID,
		CompletedNodes: slices.Sorted(maps.Keys(p.completed)),
		State:          state,
		NodeOutputs:    maps.Clone(p.outputs),
		Variables:      maps.Clone(p.variables),
	}
}
