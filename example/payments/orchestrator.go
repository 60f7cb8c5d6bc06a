package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
	"github.com/sicko7947/idemflow/checkpoint"
	"github.com/sicko7947/idemflow/engine"
)

// Backends are the stores the orchestrator persists to
type Backends struct {
	Transfers   idemflow.ResultStorage[TransferOutput]
	Checkpoints idemflow.CheckpointStorage
}

// Orchestrator handles idempotent transfers and checkpointed payouts
type Orchestrator struct {
	ledger    *Ledger
	transfers *engine.Executor[TransferInput, TransferOutput]
	manager   *checkpoint.Manager
	runner    *checkpoint.Runner
	logger    zerolog.Logger
}

// NewOrchestrator creates a payments orchestrator
func NewOrchestrator(
	ledger *Ledger,
	backends Backends,
	logger zerolog.Logger,
	metrics idemflow.Metrics,
	actionOpts ...idemflow.ConfigOption,
) *Orchestrator {
	transfers := engine.NewExecutor[TransferInput, TransferOutput](
		NewTransferAction(ledger, actionOpts...),
		backends.Transfers,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	)

	manager := checkpoint.NewManager(
		backends.Checkpoints,
		idemflow.AfterEachNode(),
		checkpoint.WithLogger(logger),
		checkpoint.WithMetrics(metrics),
	)

	return &Orchestrator{
		ledger:    ledger,
		transfers: transfers,
		manager:   manager,
		runner:    checkpoint.NewRunner(manager),
		logger:    logger,
	}
}

// Ledger returns the orchestrator's ledger
func (o *Orchestrator) Ledger() *Ledger {
	return o.ledger
}

// Transfer runs a single transfer at most once per key and input
func (o *Orchestrator) Transfer(ctx context.Context, key string, input TransferInput) (TransferOutput, error) {
	return o.transfers.ExecuteDerived(ctx, key, input)
}

func payoutWorkflowID(payoutID string) string {
	return "payout-" + payoutID
}

// RunPayout runs or resumes the payout workflow for input.PayoutID
func (o *Orchestrator) RunPayout(ctx context.Context, input PayoutInput) (*PayoutStatus, error) {
	if strings.TrimSpace(input.PayoutID) == "" {
		return nil, idemflow.NewValidationError("payout id must not be empty")
	}

	o.logger.Info().
		Str("payout_id", input.PayoutID).
		Str("account", input.Account).
		Int64("amount", input.Amount).
		Msg("Starting payout workflow")

	graph, err := o.payoutGraph(input)
	if err != nil {
		return nil, err
	}

	result, err := o.runner.RunGraph(ctx, payoutWorkflowID(input.PayoutID), graph)
	if result == nil {
		return nil, err
	}

	status := &PayoutStatus{
		PayoutID:     input.PayoutID,
		State:        result.State,
		CheckpointID: result.CheckpointID,
		Resumed:      result.Resumed,
		Executed:     result.Executed,
		Skipped:      result.Skipped,
	}
	if err != nil {
		status.Error = err.Error()
		return status, err
	}

	receipt, err := checkpoint.Output[ReceiptOutput](result, "receipt")
	if err != nil {
		return status, fmt.Errorf("failed to read payout receipt: %w", err)
	}
	status.Receipt = receipt.Message
	return status, nil
}

// payoutGraph wires the payout steps: money leaves the account before it reaches the destination
func (o *Orchestrator) payoutGraph(input PayoutInput) (*checkpoint.Graph, error) {
	g := checkpoint.NewGraph()
	if err := g.AddStep(NewValidateStep(o.ledger, input)); err != nil {
		return nil, err
	}
	if err := g.AddStep(NewChargeStep(o.transfers, input), "validate"); err != nil {
		return nil, err
	}
	if err := g.AddStep(NewSettleStep(o.transfers, input), "charge"); err != nil {
		return nil, err
	}
	if err := g.AddStep(NewReceiptStep(input), "charge", "settle"); err != nil {
		return nil, err
	}
	return g, nil
}

// GetPayoutStatus reports the latest checkpoint of a payout, or nil when it never ran
func (o *Orchestrator) GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutStatus, error) {
	cp, err := o.manager.FindLatestCheckpoint(ctx, payoutWorkflowID(payoutID))
	if err != nil || cp == nil {
		return nil, err
	}

	status := &PayoutStatus{
		PayoutID:     payoutID,
		State:        cp.State,
		CheckpointID: cp.CheckpointID,
		Executed:     cp.CompletedNodes,
	}
	if raw, ok := cp.NodeOutputs["receipt"]; ok {
		receipt, err := idemflow.DecodeRaw[ReceiptOutput](raw)
		if err != nil {
			o.logger.Warn().Err(err).Str("payout_id", payoutID).Msg("Failed to parse payout receipt")
		} else {
			status.Receipt = receipt.Message
		}
	}
	return status, nil
}

// ResetPayout clears the checkpoints of a payout so it can run again from the start
func (o *Orchestrator) ResetPayout(ctx context.Context, payoutID string) error {
	return o.manager.ClearCheckpoints(ctx, payoutWorkflowID(payoutID))
}

// PayoutStatus represents the progress of a payout workflow
type PayoutStatus struct {
	PayoutID     string                 `json:"payoutId"`
	State        idemflow.WorkflowState `json:"state"`
	CheckpointID string                 `json:"checkpointId,omitempty"`
	Resumed      bool                   `json:"resumed"`
	Executed     []string               `json:"executed,omitempty"`
	Skipped      []string               `json:"skipped,omitempty"`
	Receipt      string                 `json:"receipt,omitempty"`
	Error        string                 `json:"error,omitempty"`
}
