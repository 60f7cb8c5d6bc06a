package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sicko7947/idemflow"
)

// ClearingAccount holds payout funds between the charge and settle legs
const ClearingAccount = "clearing"

var (
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Ledger is an in-memory account book. Every call to Transfer moves money,
// so callers that may retry go through an idempotent executor.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
	seq      atomic.Int64
}

// NewLedger creates a ledger with the given opening balances
func NewLedger(opening map[string]int64) *Ledger {
	balances := make(map[string]int64, len(opening)+1)
	for account, balance := range opening {
		balances[account] = balance
	}
	if _, ok := balances[ClearingAccount]; !ok {
		balances[ClearingAccount] = 0
	}
	return &Ledger{balances: balances}
}

// Balance returns the balance of account
func (l *Ledger) Balance(account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	return balance, nil
}

// Transfer moves input.Amount from input.From to input.To
func (l *Ledger) Transfer(ctx context.Context, input TransferInput) (TransferOutput, error) {
	if err := ctx.Err(); err != nil {
		return TransferOutput{}, err
	}
	if input.Amount <= 0 {
		return TransferOutput{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from, ok := l.balances[input.From]
	if !ok {
		return TransferOutput{}, fmt.Errorf("%w: %s", ErrUnknownAccount, input.From)
	}
	to, ok := l.balances[input.To]
	if !ok {
		return TransferOutput{}, fmt.Errorf("%w: %s", ErrUnknownAccount, input.To)
	}
	if from < input.Amount {
		return TransferOutput{}, ErrInsufficientFunds
	}

	l.balances[input.From] = from - input.Amount
	l.balances[input.To] = to + input.Amount

	return TransferOutput{
		TransferID:  fmt.Sprintf("tr-%d", l.seq.Add(1)),
		FromBalance: l.balances[input.From],
		ToBalance:   l.balances[input.To],
	}, nil
}

// NewTransferAction wraps the ledger's Transfer as an idempotent action.
// Keys are the caller's key prefixed onto a hash of the transfer.
func NewTransferAction(ledger *Ledger, opts ...idemflow.ConfigOption) *idemflow.ActionFunc[TransferInput, TransferOutput] {
	opts = append([]idemflow.ConfigOption{
		idemflow.WithKeyStrategy(idemflow.Hybrid(true, true)),
		idemflow.WithInputMismatch(idemflow.InputMismatchReject),
	}, opts...)
	return idemflow.NewAction(ledger.Transfer, opts...)
}
