package engine

import (
	"context"

	"github.com/sicko7947/idemflow"
)

// Executor runs an action so that its side effects happen at most once per key
// within the action's deduplication window
type Executor[In, Out any] struct {
	action idemflow.Action[In, Out]
	merger idemflow.Merger[In, Out]
	core   *dedup[Out]
}

// NewExecutor creates an executor for action backed by storage.
// The action's config is copied here; later changes to the action do not apply.
func NewExecutor[In, Out any](
	action idemflow.Action[In, Out],
	storage idemflow.ResultStorage[Out],
	opts ...Option,
) *Executor[In, Out] {
	o := newOptions(opts)
	cfg := action.Config()

	e := &Executor[In, Out]{
		action: action,
		core:   newDedup(storage, cfg, o),
	}
	if merger, ok := action.(idemflow.Merger[In, Out]); ok {
		e.merger = merger
	}
	return e
}

// Config returns the config the executor was built with
func (e *Executor[In, Out]) Config() idemflow.Config {
	return e.core.cfg
}

// Execute returns the stored result for key, or runs the action with input and stores its result
func (e *Executor[In, Out]) Execute(ctx context.Context, key idemflow.Key, input In) (Out, error) {
	fingerprint, err := fingerprintOf(input)
	if err != nil {
		var zero Out
		return zero, err
	}

	c := call[Out]{
		key:         key,
		fingerprint: fingerprint,
		run: func(ctx context.Context) (Out, error) {
			return e.action.Execute(ctx, input)
		},
	}
	if e.merger != nil {
		c.merge = func(ctx context.Context, previous Out) (Out, error) {
			return e.merger.Merge(ctx, previous, input)
		}
	}

	return e.core.do(ctx, c)
}

// ExecuteDerived derives the key from userKey and input using the configured key strategy
func (e *Executor[In, Out]) ExecuteDerived(ctx context.Context, userKey string, input In) (Out, error) {
	key, err := idemflow.DeriveKey(e.core.cfg.KeyStrategy, userKey, input)
	if err != nil {
		var zero Out
		return zero, err
	}
	return e.Execute(ctx, key, input)
}

// InFlight reports whether an execution for key is currently running
func (e *Executor[In, Out]) InFlight(key idemflow.Key) bool {
	return e.core.flights.inFlight(key)
}
