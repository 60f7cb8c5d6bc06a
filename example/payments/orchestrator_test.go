package payments

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
	"github.com/sicko7947/idemflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(opening map[string]int64) *Orchestrator {
	return NewOrchestrator(
		NewLedger(opening),
		Backends{
			Transfers:   store.NewMemoryStorage[idemflow.Entry[TransferOutput]](),
			Checkpoints: store.NewMemoryCheckpointStorage(),
		},
		zerolog.Nop(),
		idemflow.NopMetrics{},
	)
}

func balance(t *testing.T, l *Ledger, account string) int64 {
	t.Helper()
	b, err := l.Balance(account)
	require.NoError(t, err)
	return b
}

func TestOrchestrator_TransferIsIdempotent(t *testing.T) {
	o := newTestOrchestrator(map[string]int64{"alice": 100, "bob": 0})
	ctx := context.Background()
	input := TransferInput{From: "alice", To: "bob", Amount: 40}

	first, err := o.Transfer(ctx, "tx-1", input)
	require.NoError(t, err)
	second, err := o.Transfer(ctx, "tx-1", input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(60), balance(t, o.Ledger(), "alice"))
	assert.Equal(t, int64(40), balance(t, o.Ledger(), "bob"))

	// A new key is a new transfer
	_, err = o.Transfer(ctx, "tx-2", input)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance(t, o.Ledger(), "alice"))
}

func TestOrchestrator_ConcurrentTransfers(t *testing.T) {
	o := newTestOrchestrator(map[string]int64{"alice": 100, "bob": 0})
	input := TransferInput{From: "alice", To: "bob", Amount: 10}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.Transfer(context.Background(), "same", input)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(90), balance(t, o.Ledger(), "alice"))
}

func TestOrchestrator_TransferFailureIsNotCached(t *testing.T) {
	o := newTestOrchestrator(map[string]int64{"alice": 5, "bob": 0})
	ctx := context.Background()

	_, err := o.Transfer(ctx, "tx", TransferInput{From: "alice", To: "bob", Amount: 10})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = o.Transfer(ctx, "tx", TransferInput{From: "alice", To: "bob", Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance(t, o.Ledger(), "alice"))
}

func TestOrchestrator_Payout(t *testing.T) {
	o := newTestOrchestrator(map[string]int64{"merchant": 500, "bank": 0})
	ctx := context.Background()
	input := PayoutInput{PayoutID: "p-1", Account: "merchant", Destination: "bank", Amount: 200}

	status, err := o.RunPayout(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, idemflow.WorkflowStateCompleted, status.State)
	assert.Equal(t, []string{"validate", "charge", "settle", "receipt"}, status.Executed)
	assert.Contains(t, status.Receipt, "Payout p-1 of 200 sent to bank")

	assert.Equal(t, int64(300), balance(t, o.Ledger(), "merchant"))
	assert.Equal(t, int64(200), balance(t, o.Ledger(), "bank"))
	assert.Equal(t, int64(0), balance(t, o.Ledger(), ClearingAccount))

	// A completed payout is not run again
	again, err := o.RunPayout(ctx, input)
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Empty(t, again.Executed)
	assert.Equal(t, int64(300), balance(t, o.Ledger(), "merchant"))

	latest, err := o.GetPayoutStatus(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, idemflow.WorkflowStateCompleted, latest.State)
	assert.Equal(t, status.Receipt, latest.Receipt)
}

func TestOrchestrator_PayoutResetDoesNotMoveMoneyTwice(t *testing.T) {
	o := newTestOrchestrator(map[string]int64{"merchant": 500, "bank": 0})
	ctx := context.Background()
	input := PayoutInput{PayoutID: "p-2", Account: "merchant", Destination: "bank", Amount: 100}

	_, err := o.RunPayout(ctx, input)
	require.NoError(t, err)

	require.NoError(t, o.ResetPayout(ctx, "p-2"))
	status, err := o.GetPayoutStatus(ctx, "p-2")
	require.NoError(t, err)
	assert.Nil(t, status)

	// Every step runs again but the transfer legs are answered from stored results
	rerun, err := o.RunPayout(ctx, input)
	require.NoError(t, err)
	assert.False(t, rerun.Resumed)
	assert.Len(t, rerun.Executed, 4)
	assert.Equal(t, int64(400), balance(t, o.Ledger(), "merchant"))
	assert.Equal(t, int64(100), balance(t, o.Ledger(), "bank"))
}

func TestOrchestrator_PayoutFailure(t *testing.T) {
	o := newTestOrchestrator(map[string]int64{"merchant": 50, "bank": 0})
	ctx := context.Background()

	status, err := o.RunPayout(ctx, PayoutInput{PayoutID: "p-3", Account: "merchant", Destination: "bank", Amount: 100})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NotNil(t, status)
	assert.Equal(t, idemflow.WorkflowStateFailed, status.State)
	assert.NotEmpty(t, status.Error)

	_, err = o.RunPayout(ctx, PayoutInput{Account: "merchant"})
	assert.True(t, idemflow.IsValidationError(err))
}
