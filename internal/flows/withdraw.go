package flows

import (
	"context"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
)

// WithdrawFlow: idle -> creating -> getting_tx -> signing -> confirming -> verifying.
var WithdrawFlow = action.Flow{
	Kind: action.KindWithdraw,
	Phases: []action.Phase{
		PhaseCreating, PhaseGettingTx, action.PhaseSigning, PhaseConfirming, PhaseVerifying,
	},
	Labels: labels("Withdrawal", map[action.Phase]string{
		PhaseCreating:  "Creating withdrawal",
		PhaseGettingTx: "Fetching claim transaction",
		PhaseVerifying: "Verifying claim",
	}),
	DefaultError: "Withdrawal failed, please try again",
}

// WithdrawBackend is the backend surface used by Withdraw.
type WithdrawBackend interface {
	CreateWithdrawOrder(ctx context.Context, req backend.WithdrawOrderRequest) (*backend.WithdrawOrder, error)
	GetWithdrawTransaction(ctx context.Context, orderID int64) (*backend.WithdrawTransaction, error)
	CheckClaimResult(ctx context.Context, req backend.ClaimCheck) (*backend.Ack, error)
}

// Withdraw claims rewards through a withdrawal order.
type Withdraw struct {
	*runner
	backend WithdrawBackend
}

func NewWithdraw(b WithdrawBackend, deps Deps) *Withdraw {
	return &Withdraw{runner: newRunner(WithdrawFlow, deps), backend: b}
}

// Withdraw creates a withdrawal order and claims it.
func (f *Withdraw) Withdraw(ctx context.Context, req backend.WithdrawOrderRequest) action.Run {
	var orderID int64

	create := action.Step{Phase: PhaseCreating, Do: func(ctx context.Context, sc *action.StepContext) error {
		if !req.Amount.IsPositive() {
			return action.Invalid("amount", "amount must be greater than zero")
		}
		order, err := f.backend.CreateWithdrawOrder(ctx, req)
		if err != nil {
			return err
		}
		orderID = order.OrderID
		return sc.SetOrderID(itoa(orderID))
	}}
	steps := append([]action.Step{create}, f.claimSteps(&orderID)...)
	return f.execute(ctx, steps...)
}

// ClaimWithdraw resumes an existing order at getting_tx without creating a new one.
func (f *Withdraw) ClaimWithdraw(ctx context.Context, orderID int64) action.Run {
	id := orderID
	return f.execute(ctx, f.claimSteps(&id)...)
}

func (f *Withdraw) claimSteps(orderID *int64) []action.Step {
	return []action.Step{
		{Phase: PhaseGettingTx, Do: func(ctx context.Context, sc *action.StepContext) error {
			if *orderID <= 0 {
				return action.Invalid("orderId", "withdrawal order is missing")
			}
			if sc.Run().OrderID == "" {
				if err := sc.SetOrderID(itoa(*orderID)); err != nil {
					return err
				}
			}
			wtx, err := f.backend.GetWithdrawTransaction(ctx, *orderID)
			if err != nil {
				return err
			}
			return f.resolveIntent(sc, wtx.UnsignedTx, nil)
		}},
		f.signStep(),
		f.confirmStep(),
		{Phase: PhaseVerifying, Do: func(ctx context.Context, sc *action.StepContext) error {
			ack, err := f.backend.CheckClaimResult(ctx, backend.ClaimCheck{OrderID: *orderID, TransactionHash: txHashString(sc)})
			if err != nil {
				return err
			}
			return checkAck(ack, "Claim could not be verified")
		}},
	}
}
