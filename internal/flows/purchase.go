package flows

import (
	"context"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/poller"
)

// PurchaseFlow: idle -> creating -> signing -> confirming -> submitting -> verifying -> minting.
// The chain receipt wait and the backend order poll are distinct phases.
var PurchaseFlow = action.Flow{
	Kind: action.KindPurchase,
	Phases: []action.Phase{
		PhaseCreating, action.PhaseSigning, PhaseConfirming,
		PhaseSubmitting, PhaseVerifying, PhaseMinting,
	},
	Labels: labels("Purchase", map[action.Phase]string{
		PhaseCreating:   "Creating order",
		PhaseSubmitting: "Submitting payment",
		PhaseVerifying:  "Verifying payment",
		PhaseMinting:    "Minting NFT",
	}),
	DefaultError: "Purchase failed, please try again",
}

// PurchaseBackend is the backend surface used by Purchase.
type PurchaseBackend interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (*backend.CreateOrderResponse, error)
	SubmitPaymentConfirmation(ctx context.Context, req backend.PaymentConfirmation) (*backend.Ack, error)
	GetOrderStatus(ctx context.Context, orderID int64) (*backend.OrderStatus, error)
}

// ClassifyOrder maps an NFT order state onto the poller's outcomes.
func ClassifyOrder(s *backend.OrderStatus) poller.Status {
	switch s.State {
	case backend.OrderCompleted, backend.OrderMinted:
		return poller.Success
	case backend.OrderFailed:
		return poller.Failure
	default:
		return poller.Pending
	}
}

// Purchase buys an NFT tier.
type Purchase struct {
	*runner
	backend PurchaseBackend
}

func NewPurchase(b PurchaseBackend, deps Deps) *Purchase {
	return &Purchase{runner: newRunner(PurchaseFlow, deps), backend: b}
}

// Purchase runs the flow to completion and returns the final run.
func (f *Purchase) Purchase(ctx context.Context, req backend.CreateOrderRequest) action.Run {
	var orderID int64

	return f.execute(ctx,
		action.Step{Phase: PhaseCreating, Do: func(ctx context.Context, sc *action.StepContext) error {
			if req.TierID <= 0 {
				return action.Invalid("tierId", "select a tier to purchase")
			}
			if req.Quantity <= 0 {
				return action.Invalid("quantity", "quantity must be at least 1")
			}
			order, err := f.backend.CreateOrder(ctx, req)
			if err != nil {
				return err
			}
			orderID = order.OrderID
			if err := sc.SetOrderID(itoa(orderID)); err != nil {
				return err
			}
			return f.resolveIntent(sc, order.UnsignedTx, order.TransactionParams)
		}},
		f.signStep(),
		f.confirmStep(),
		action.Step{Phase: PhaseSubmitting, Do: func(ctx context.Context, sc *action.StepContext) error {
			ack, err := f.backend.SubmitPaymentConfirmation(ctx, backend.PaymentConfirmation{OrderID: orderID, TransactionHash: txHashString(sc)})
			if err != nil {
				return err
			}
			return checkAck(ack, "Payment could not be confirmed")
		}},
		action.Step{Phase: PhaseVerifying, Do: func(ctx context.Context, sc *action.StepContext) error {
			p := poller.Poller[*backend.OrderStatus]{
				Fetch: func(ctx context.Context) (*backend.OrderStatus, error) {
					return f.backend.GetOrderStatus(ctx, orderID)
				},
				Classify: ClassifyOrder,
				OnStatus: func(s *backend.OrderStatus) {
					if s.TokenID != 0 && !noteStatus(sc, "tokenId", itoa(s.TokenID)) {
						return
					}
					if !noteStatus(sc, "orderState", string(s.State)) {
						return
					}
					if s.State == backend.OrderMinting && sc.Run().Phase == PhaseVerifying {
						if err := sc.Enter(PhaseMinting); err != nil {
							sc.Logger().Warn().Err(err).Msg("could not enter minting")
						}
					}
				},
			}
			return verify(ctx, sc, f.runner, p, func() error {
				return backendFailure("Order failed on the backend")
			})
		}},
	)
}
