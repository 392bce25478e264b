package flows

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
)

var burnUnit = decimal.NewFromInt(100)

// BurnFlow: idle -> preparing -> signing -> confirming -> submitting.
var BurnFlow = action.Flow{
	Kind:   action.KindBurn,
	Phases: []action.Phase{PhasePreparing, action.PhaseSigning, PhaseConfirming, PhaseSubmitting},
	Labels: labels("Burn", map[action.Phase]string{
		PhasePreparing:  "Preparing burn",
		PhaseSubmitting: "Recording burn",
	}),
	DefaultError: "Burn failed, please try again",
}

// BurnBackend is the backend surface used by Burn.
type BurnBackend interface {
	PreparePICBurn(ctx context.Context, req backend.BurnPrepareRequest) (*backend.BurnPreparation, error)
	SubmitPICBurn(ctx context.Context, req backend.BurnSubmission) (*backend.Ack, error)
}

// Burn burns PIC worth a USDT amount.
type Burn struct {
	*runner
	backend BurnBackend
}

func NewBurn(b BurnBackend, deps Deps) *Burn {
	return &Burn{runner: newRunner(BurnFlow, deps), backend: b}
}

// ValidateBurnAmount accepts positive multiples of 100.
func ValidateBurnAmount(usdt decimal.Decimal) error {
	if !usdt.IsPositive() || !usdt.Mod(burnUnit).IsZero() {
		return action.Invalid("usdtAmount", "amount must be a multiple of 100")
	}
	return nil
}

// Burn runs the flow to completion and returns the final run.
func (f *Burn) Burn(ctx context.Context, usdt decimal.Decimal) action.Run {
	var burnID int64

	return f.execute(ctx,
		action.Step{Phase: PhasePreparing, Do: func(ctx context.Context, sc *action.StepContext) error {
			if err := ValidateBurnAmount(usdt); err != nil {
				return err
			}
			prep, err := f.backend.PreparePICBurn(ctx, backend.BurnPrepareRequest{USDTAmount: usdt})
			if err != nil {
				return err
			}
			burnID = prep.BurnID
			if err := sc.SetOrderID(itoa(burnID)); err != nil {
				return err
			}
			if err := sc.SetDetail("picAmount", prep.PICAmount.String()); err != nil {
				return err
			}
			return f.resolveIntent(sc, "", &prep.TransactionParams)
		}},
		f.signStep(),
		f.confirmStep(),
		action.Step{Phase: PhaseSubmitting, Do: func(ctx context.Context, sc *action.StepContext) error {
			// The burn is final on-chain; the backend reconciles from chain events
			// when this notification is lost.
			ack, err := f.backend.SubmitPICBurn(ctx, backend.BurnSubmission{BurnID: burnID, TransactionHash: txHashString(sc)})
			if err == nil {
				err = checkAck(ack, "burn submission was not acknowledged")
			}
			if err != nil {
				sc.Logger().Warn().Err(err).Int64("burn_id", burnID).Msg("burn submission failed, ignoring")
			}
			return nil
		}},
	)
}
