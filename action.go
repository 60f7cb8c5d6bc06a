package idemflow

import "context"

// Action is a unit of work whose side effects must happen at most once per key
type Action[In, Out any] interface {
	Config() Config
	Execute(ctx context.Context, input In) (Out, error)
}

// Merger is implemented by actions that can fold a new input into a stored result
type Merger[In, Out any] interface {
	Merge(ctx context.Context, previous Out, input In) (Out, error)
}

// ActionHandler is the user-defined function signature for action logic
type ActionHandler[In, Out any] func(ctx context.Context, input In) (Out, error)

// MergeHandler is the user-defined function signature for merge logic
type MergeHandler[In, Out any] func(ctx context.Context, previous Out, input In) (Out, error)

// ActionFunc adapts a handler and a config into an Action
type ActionFunc[In, Out any] struct {
	Handler ActionHandler[In, Out]
	Cfg     Config
}

// NewAction creates an action from handler with DefaultConfig adjusted by opts
func NewAction[In, Out any](handler ActionHandler[In, Out], opts ...ConfigOption) *ActionFunc[In, Out] {
	return &ActionFunc[In, Out]{
		Handler: handler,
		Cfg:     DefaultConfig(opts...),
	}
}

func (a *ActionFunc[In, Out]) Config() Config {
	return a.Cfg
}

func (a *ActionFunc[In, Out]) Execute(ctx context.Context, input In) (Out, error) {
	return a.Handler(ctx, input)
}

// MergeableAction is an ActionFunc that also implements Merger
type MergeableAction[In, Out any] struct {
	*ActionFunc[In, Out]
	MergeFn MergeHandler[In, Out]
}

// NewMergeableAction creates an action that supports the MERGE conflict behavior
func NewMergeableAction[In, Out any](
	handler ActionHandler[In, Out],
	merge MergeHandler[In, Out],
	opts ...ConfigOption,
) *MergeableAction[In, Out] {
	opts = append([]ConfigOption{WithConflictBehavior(Merge())}, opts...)
	return &MergeableAction[In, Out]{
		ActionFunc: NewAction(handler, opts...),
		MergeFn:    merge,
	}
}

func (a *MergeableAction[In, Out]) Merge(ctx context.Context, previous Out, input In) (Out, error) {
	return a.MergeFn(ctx, previous, input)
}

// TransactionalAction is work that runs inside a transaction identified by the caller
type TransactionalAction[In, Out any] interface {
	Execute(ctx context.Context, input In) (Out, error)
}
