package engine

import (
	"context"
	"strings"

	"github.com/sicko7947/idemflow"
)

// TransactionManager deduplicates transactional work by transaction ID
type TransactionManager[Out any] struct {
	core *dedup[Out]
}

// NewTransactionManager creates a transaction manager backed by storage.
// It starts from DefaultConfig at TRANSACTION level with user-provided keys.
func NewTransactionManager[Out any](storage idemflow.ResultStorage[Out], opts ...Option) *TransactionManager[Out] {
	o := newOptions(opts)
	cfgOpts := append([]idemflow.ConfigOption{
		idemflow.WithLevel(idemflow.LevelTransaction),
		idemflow.WithKeyStrategy(idemflow.UserProvided()),
	}, o.txConfig...)

	return &TransactionManager[Out]{
		core: newDedup(storage, idemflow.DefaultConfig(cfgOpts...), o),
	}
}

// Config returns the config the manager was built with
func (tm *TransactionManager[Out]) Config() idemflow.Config {
	return tm.core.cfg
}

func transactionKey(txID string) (idemflow.Key, error) {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return "", idemflow.NewValidationError("transaction id must not be empty")
	}
	return idemflow.Key(txID), nil
}

// ExecuteIdempotent runs fn at most once for txID and returns the recorded result afterwards
func (tm *TransactionManager[Out]) ExecuteIdempotent(ctx context.Context, txID string, fn func(ctx context.Context) (Out, error)) (Out, error) {
	key, err := transactionKey(txID)
	if err != nil {
		var zero Out
		return zero, err
	}
	return tm.core.do(ctx, call[Out]{key: key, run: fn})
}

// RunTransaction runs action with input through tm under txID
func RunTransaction[In, Out any](
	ctx context.Context,
	tm *TransactionManager[Out],
	action idemflow.TransactionalAction[In, Out],
	input In,
	txID string,
) (Out, error) {
	var zero Out

	key, err := transactionKey(txID)
	if err != nil {
		return zero, err
	}

	fingerprint, err := fingerprintOf(input)
	if err != nil {
		return zero, err
	}

	return tm.core.do(ctx, call[Out]{
		key:         key,
		fingerprint: fingerprint,
		run: func(ctx context.Context) (Out, error) {
			return action.Execute(ctx, input)
		},
	})
}
