package payments

import (
	"fmt"
	"time"

	"github.com/sicko7947/idemflow"
	"github.com/sicko7947/idemflow/checkpoint"
	"github.com/sicko7947/idemflow/engine"
)

func NewValidateStep(ledger *Ledger, input PayoutInput) *checkpoint.Step[ValidateOutput] {
	return checkpoint.NewStep(
		"validate",
		func(ctx *checkpoint.StepContext) (ValidateOutput, error) {
			if input.Amount <= 0 {
				return ValidateOutput{}, ErrInvalidAmount
			}
			if _, err := ledger.Balance(input.Destination); err != nil {
				return ValidateOutput{}, err
			}
			available, err := ledger.Balance(input.Account)
			if err != nil {
				return ValidateOutput{}, err
			}
			if available < input.Amount {
				return ValidateOutput{}, ErrInsufficientFunds
			}
			ctx.Logger.Info().Int64("available", available).Int64("amount", input.Amount).Msg("Payout validated")
			return ValidateOutput{Available: available}, nil
		},
	)
}

// NewChargeStep moves the payout into the clearing account. The leg is keyed by payout,
// so a retried or resumed workflow never charges twice.
func NewChargeStep(transfers *engine.Executor[TransferInput, TransferOutput], input PayoutInput) *checkpoint.Step[LegOutput] {
	return checkpoint.NewStep(
		"charge",
		func(ctx *checkpoint.StepContext) (LegOutput, error) {
			out, err := transfers.ExecuteDerived(ctx, input.PayoutID+":charge", TransferInput{
				From:   input.Account,
				To:     ClearingAccount,
				Amount: input.Amount,
			})
			if err != nil {
				return LegOutput{}, err
			}
			ctx.Logger.Info().Str("transfer_id", out.TransferID).Msg("Payout charged")
			return LegOutput{TransferID: out.TransferID, Balance: out.FromBalance}, nil
		},
		checkpoint.WithRetries(3),
		checkpoint.WithRetryDelay(50*time.Millisecond),
		checkpoint.WithBackoff(idemflow.BackoffExponential),
	)
}

func NewSettleStep(transfers *engine.Executor[TransferInput, TransferOutput], input PayoutInput) *checkpoint.Step[LegOutput] {
	return checkpoint.NewStep(
		"settle",
		func(ctx *checkpoint.StepContext) (LegOutput, error) {
			out, err := transfers.ExecuteDerived(ctx, input.PayoutID+":settle", TransferInput{
				From:   ClearingAccount,
				To:     input.Destination,
				Amount: input.Amount,
			})
			if err != nil {
				return LegOutput{}, err
			}
			if err := ctx.SetVar("settled_at", time.Now().UTC()); err != nil {
				return LegOutput{}, err
			}
			return LegOutput{TransferID: out.TransferID, Balance: out.ToBalance}, nil
		},
		checkpoint.WithRetries(3),
		checkpoint.WithRetryDelay(50*time.Millisecond),
		checkpoint.WithBackoff(idemflow.BackoffExponential),
	)
}

func NewReceiptStep(input PayoutInput) *checkpoint.Step[ReceiptOutput] {
	return checkpoint.NewStep(
		"receipt",
		func(ctx *checkpoint.StepContext) (ReceiptOutput, error) {
			charge, err := checkpoint.GetOutput[LegOutput](ctx, "charge")
			if err != nil {
				return ReceiptOutput{}, err
			}
			settle, err := checkpoint.GetOutput[LegOutput](ctx, "settle")
			if err != nil {
				return ReceiptOutput{}, err
			}
			msg := fmt.Sprintf("Payout %s of %d sent to %s (%s, %s)",
				input.PayoutID, input.Amount, input.Destination, charge.TransferID, settle.TransferID)
			return ReceiptOutput{Message: msg}, nil
		},
	)
}
