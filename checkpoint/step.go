package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sicko7947/idemflow"
)

// StepHandler is the user-defined function signature for step logic
type StepHandler[TOut any] func(ctx *StepContext) (TOut, error)

// StepConfig controls retries and timeouts of one step
type StepConfig struct {
	MaxRetries   int
	RetryDelay   time.Duration
	RetryBackoff idemflow.BackoffStrategy
	Timeout      time.Duration
}

// DefaultStepConfig runs a step once with no timeout
var DefaultStepConfig = StepConfig{
	MaxRetries:   0,
	RetryDelay:   100 * time.Millisecond,
	RetryBackoff: idemflow.BackoffLinear,
}

// StepOption configures a step
type StepOption func(*StepConfig)

// WithRetries sets how many times a failed step is retried
func WithRetries(max int) StepOption {
	return func(c *StepConfig) {
		if max >= 0 {
			c.MaxRetries = max
		}
	}
}

// WithRetryDelay sets the base delay between attempts
func WithRetryDelay(delay time.Duration) StepOption {
	return func(c *StepConfig) {
		c.RetryDelay = delay
	}
}

// WithBackoff sets the retry backoff strategy
func WithBackoff(strategy idemflow.BackoffStrategy) StepOption {
	return func(c *StepConfig) {
		c.RetryBackoff = strategy
	}
}

// WithTimeout limits each attempt. Zero disables the limit.
func WithTimeout(timeout time.Duration) StepOption {
	return func(c *StepConfig) {
		c.Timeout = timeout
	}
}

// StepExecutor is the interface the runner works with
type StepExecutor interface {
	GetID() string
	GetConfig() StepConfig

	// Execute runs the step and returns its JSON-encoded output
	Execute(ctx *StepContext) (json.RawMessage, error)
}

// Step is a typed step definition
type Step[TOut any] struct {
	ID      string
	Handler StepHandler[TOut]
	Config  StepConfig
}

// NewStep creates a new typed step
func NewStep[TOut any](id string, handler StepHandler[TOut], opts ...StepOption) *Step[TOut] {
	s := &Step[TOut]{
		ID:      id,
		Handler: handler,
		Config:  DefaultStepConfig,
	}

	for _, opt := range opts {
		opt(&s.Config)
	}

	return s
}

func (s *Step[TOut]) GetID() string {
	return s.ID
}

func (s *Step[TOut]) GetConfig() StepConfig {
	return s.Config
}

// Execute runs the handler and marshals its output
func (s *Step[TOut]) Execute(ctx *StepContext) (json.RawMessage, error) {
	output, err := s.Handler(ctx)
	if err != nil {
		return nil, err
	}

	outputBytes, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output of step %s: %w", s.ID, err)
	}

	return outputBytes, nil
}
