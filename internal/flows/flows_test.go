package flows

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/chain"
	"github.com/xueqianLu/payfi/internal/wallet"
)

// flowCase drives one action up to the signing step.
type flowCase struct {
	flow action.Flow
	// first is the backend call that opens the run.
	first   string
	prepare func(t *testing.T, h *harness)
	run     func(h *harness) action.Run
}

func flowCases() map[string]flowCase {
	withdrawReq := backend.WithdrawOrderRequest{Amount: decimal.NewFromInt(25), Token: "USDT"}
	return map[string]flowCase{
		"purchase": {
			flow:  PurchaseFlow,
			first: "CreateOrder",
			prepare: func(t *testing.T, h *harness) {
				h.backend.On("CreateOrder", mock.Anything, mock.Anything).
					Return(&backend.CreateOrderResponse{OrderID: 11, UnsignedTx: unsignedTx(t, 0)}, nil)
			},
			run: func(h *harness) action.Run {
				return NewPurchase(h.backend, h.deps).Purchase(context.Background(), backend.CreateOrderRequest{TierID: 2, Quantity: 1})
			},
		},
		"stake": {
			flow:  StakeFlow,
			first: "CreateStakeTransaction",
			prepare: func(_ *testing.T, h *harness) {
				h.expectStakeTx()
			},
			run: func(h *harness) action.Run {
				return NewStake(h.backend, h.deps).Stake(context.Background(), NFT{TokenID: 5})
			},
		},
		"burn": {
			flow:  BurnFlow,
			first: "PreparePICBurn",
			prepare: func(_ *testing.T, h *harness) {
				h.expectBurnPrepare(300)
			},
			run: func(h *harness) action.Run {
				return NewBurn(h.backend, h.deps).Burn(context.Background(), usdt(300))
			},
		},
		"swap": {
			flow:  SwapFlow,
			first: "CreateSwapOrder",
			prepare: func(_ *testing.T, h *harness) {
				params := tokenParams("0x38ed1739")
				h.backend.On("CreateSwapOrder", mock.Anything, mock.Anything).
					Return(&backend.SwapOrder{OrderID: 21, TransactionParams: &params}, nil)
			},
			run: func(h *harness) action.Run {
				return NewSwap(h.backend, h.deps).Swap(context.Background(), swapRequest())
			},
		},
		"withdraw": {
			flow:  WithdrawFlow,
			first: "CreateWithdrawOrder",
			prepare: func(t *testing.T, h *harness) {
				h.backend.On("CreateWithdrawOrder", mock.Anything, withdrawReq).Return(&backend.WithdrawOrder{OrderID: 42}, nil)
				h.backend.On("GetWithdrawTransaction", mock.Anything, int64(42)).
					Return(&backend.WithdrawTransaction{OrderID: 42, UnsignedTx: unsignedTx(t, 0)}, nil)
			},
			run: func(h *harness) action.Run {
				return NewWithdraw(h.backend, h.deps).Withdraw(context.Background(), withdrawReq)
			},
		},
	}
}

func TestFlows_FailureAtEachStep(t *testing.T) {
	failures := map[string]struct {
		inject func(t *testing.T, h *harness, fc flowCase)
		kind   action.ErrorKind
		hashed bool
	}{
		"backend error": {
			inject: func(_ *testing.T, h *harness, fc flowCase) {
				h.backend.On(fc.first, mock.Anything, mock.Anything).
					Return(nil, &backend.APIError{Status: 503, Code: 503, Message: "maintenance"})
			},
			kind: action.ErrorBackend,
		},
		"user rejection": {
			inject: func(t *testing.T, h *harness, fc flowCase) {
				fc.prepare(t, h)
				h.signer.On("SignAndSend", mock.Anything, mock.Anything).Return(common0(), wallet.ErrUserRejected)
			},
			kind: action.ErrorRejected,
		},
		"revert": {
			inject: func(t *testing.T, h *harness, fc flowCase) {
				fc.prepare(t, h)
				h.signer.On("SignAndSend", mock.Anything, mock.Anything).Return(sentHash, nil)
				h.chain.On("Wait", mock.Anything, sentHash, uint64(1)).
					Return(nil, fmt.Errorf("%w: %s", chain.ErrReverted, sentHash.Hex()))
			},
			kind:   action.ErrorReverted,
			hashed: true,
		},
	}

	for name, fc := range flowCases() {
		for fname, failure := range failures {
			fc, failure := fc, failure
			t.Run(name+"/"+fname, func(t *testing.T) {
				h := newHarness()
				failure.inject(t, h, fc)

				run := fc.run(h)

				assert.Equal(t, action.PhaseError, run.Phase)
				assert.Equal(t, failure.kind, run.ErrorKind)
				assert.NotEmpty(t, run.ErrorMessage)
				if failure.hashed {
					require.NotNil(t, run.TxHash)
					assert.Equal(t, sentHash, *run.TxHash)
				} else {
					assert.Nil(t, run.TxHash)
					h.chain.AssertNotCalled(t, "Wait", mock.Anything, mock.Anything, mock.Anything)
				}
				assertMonotonic(t, fc.flow, h.rec.Phases())
			})
		}
	}
}

func TestResolveIntent_ChainMismatch(t *testing.T) {
	h := newHarness()
	h.deps.ChainID = 97
	h.expectBurnPrepare(300)

	run := NewBurn(h.backend, h.deps).Burn(context.Background(), usdt(300))

	assert.Equal(t, action.PhaseError, run.Phase)
	assert.Equal(t, action.ErrorDecode, run.ErrorKind)
	assert.Equal(t, "Transaction was prepared for another chain", run.ErrorMessage)
	assert.Nil(t, run.Intent)
	h.signer.AssertNotCalled(t, "SignAndSend", mock.Anything, mock.Anything)
}

func TestResolveIntent_ChainChecked(t *testing.T) {
	for _, chainID := range []int64{56, 0} {
		t.Run(fmt.Sprint(chainID), func(t *testing.T) {
			h := newHarness()
			h.deps.ChainID = chainID
			h.expectBurnPrepare(300)
			h.expectChain()
			h.backend.On("SubmitPICBurn", mock.Anything, mock.Anything).Return(&backend.Ack{Success: true}, nil)

			run := NewBurn(h.backend, h.deps).Burn(context.Background(), usdt(300))
			assert.Equal(t, action.PhaseSuccess, run.Phase)
		})
	}
}

func TestNoteStatus(t *testing.T) {
	h := newHarness()
	r := newRunner(BurnFlow, h.deps)

	var before, after bool
	run := r.execute(context.Background(), action.Step{Phase: PhasePreparing, Do: func(ctx context.Context, sc *action.StepContext) error {
		before = noteStatus(sc, "state", "pending")
		if err := sc.Succeed(""); err != nil {
			return err
		}
		after = noteStatus(sc, "state", "late")
		return nil
	}})

	assert.True(t, before)
	assert.False(t, after)
	assert.Equal(t, action.PhaseSuccess, run.Phase)
	assert.Equal(t, "pending", run.Details["state"])
}
