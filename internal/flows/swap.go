package flows

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/poller"
)

// SwapFlow: idle -> creating -> signing -> confirming -> submitting -> verifying.
var SwapFlow = action.Flow{
	Kind: action.KindSwap,
	Phases: []action.Phase{
		PhaseCreating, action.PhaseSigning, PhaseConfirming, PhaseSubmitting, PhaseVerifying,
	},
	Labels: labels("Swap", map[action.Phase]string{
		PhaseCreating:   "Creating swap order",
		PhaseSubmitting: "Submitting swap",
		PhaseVerifying:  "Settling swap",
	}),
	DefaultError: "Swap failed, please try again",
}

// SwapBackend is the backend surface used by Swap.
type SwapBackend interface {
	CreateSwapOrder(ctx context.Context, req backend.SwapOrderRequest) (*backend.SwapOrder, error)
	SubmitSwapTransaction(ctx context.Context, req backend.SwapSubmission) (*backend.Ack, error)
	GetSwapOrder(ctx context.Context, orderID int64) (*backend.SwapOrder, error)
}

// ClassifySwap maps the numeric swap status onto the poller's outcomes.
func ClassifySwap(o *backend.SwapOrder) poller.Status {
	switch o.Status {
	case backend.SwapChecked:
		return poller.Success
	case backend.SwapCanceled, backend.SwapPaymentFailed:
		return poller.Failure
	default:
		return poller.Pending
	}
}

// Swap exchanges one token for another.
type Swap struct {
	*runner
	backend SwapBackend
}

func NewSwap(b SwapBackend, deps Deps) *Swap {
	return &Swap{runner: newRunner(SwapFlow, deps), backend: b}
}

// Swap runs the flow to completion and returns the final run.
func (f *Swap) Swap(ctx context.Context, req backend.SwapOrderRequest) action.Run {
	var (
		orderID int64
		last    backend.SwapStatus
	)

	return f.execute(ctx,
		action.Step{Phase: PhaseCreating, Do: func(ctx context.Context, sc *action.StepContext) error {
			switch {
			case req.FromToken == "" || req.ToToken == "":
				return action.Invalid("token", "select both tokens")
			case req.FromToken == req.ToToken:
				return action.Invalid("token", "cannot swap a token for itself")
			case !req.Amount.IsPositive():
				return action.Invalid("amount", "amount must be greater than zero")
			case req.Slippage.IsNegative() || req.Slippage.GreaterThan(decimal.NewFromInt(100)):
				return action.Invalid("slippage", "slippage must be between 0 and 100")
			}
			order, err := f.backend.CreateSwapOrder(ctx, req)
			if err != nil {
				return err
			}
			orderID = order.OrderID
			if err := sc.SetOrderID(itoa(orderID)); err != nil {
				return err
			}
			if err := sc.SetDetail("toAmount", order.ToAmount.String()); err != nil {
				return err
			}
			return f.resolveIntent(sc, "", order.TransactionParams)
		}},
		f.signStep(),
		f.confirmStep(),
		action.Step{Phase: PhaseSubmitting, Do: func(ctx context.Context, sc *action.StepContext) error {
			ack, err := f.backend.SubmitSwapTransaction(ctx, backend.SwapSubmission{OrderID: orderID, TransactionHash: txHashString(sc)})
			if err != nil {
				return err
			}
			return checkAck(ack, "Swap could not be submitted")
		}},
		action.Step{Phase: PhaseVerifying, Do: func(ctx context.Context, sc *action.StepContext) error {
			p := poller.Poller[*backend.SwapOrder]{
				Fetch: func(ctx context.Context) (*backend.SwapOrder, error) {
					return f.backend.GetSwapOrder(ctx, orderID)
				},
				Classify: ClassifySwap,
				OnStatus: func(o *backend.SwapOrder) {
					last = o.Status
					noteStatus(sc, "swapStatus", o.Status.String())
				},
			}
			return verify(ctx, sc, f.runner, p, func() error {
				if last == backend.SwapCanceled {
					return backendFailure("Swap order was canceled")
				}
				return backendFailure("Swap payment failed")
			})
		}},
	)
}
