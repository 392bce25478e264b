package flows

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/poller"
	"github.com/xueqianLu/payfi/internal/txcodec"
)

var (
	tokenAddr = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	sentHash  = common.HexToHash("0x9fc76417374aa880d4449a1f7f31ec597f00b1f6f3dd2d66f4c9c6c445836d8b")
)

type mockSigner struct{ mock.Mock }

func (m *mockSigner) SignAndSend(ctx context.Context, intent *txcodec.Intent) (common.Hash, error) {
	args := m.Called(ctx, intent)
	return args.Get(0).(common.Hash), args.Error(1)
}

type mockConfirmer struct{ mock.Mock }

func (m *mockConfirmer) Wait(ctx context.Context, h common.Hash, confirmations uint64) (*types.Receipt, error) {
	args := m.Called(ctx, h, confirmations)
	r, _ := args.Get(0).(*types.Receipt)
	return r, args.Error(1)
}

// mockBackend implements the backend surface of every flow.
type mockBackend struct{ mock.Mock }

func (m *mockBackend) CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (*backend.CreateOrderResponse, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.CreateOrderResponse)
	return r, args.Error(1)
}

func (m *mockBackend) SubmitPaymentConfirmation(ctx context.Context, req backend.PaymentConfirmation) (*backend.Ack, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.Ack)
	return r, args.Error(1)
}

func (m *mockBackend) GetOrderStatus(ctx context.Context, orderID int64) (*backend.OrderStatus, error) {
	args := m.Called(ctx, orderID)
	r, _ := args.Get(0).(*backend.OrderStatus)
	return r, args.Error(1)
}

func (m *mockBackend) CreateStakeTransaction(ctx context.Context, req backend.StakeTransactionRequest) (*backend.StakeTransaction, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.StakeTransaction)
	return r, args.Error(1)
}

func (m *mockBackend) SubmitStaking(ctx context.Context, req backend.SubmitStakingRequest) (*backend.StakingResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.StakingResult)
	return r, args.Error(1)
}

func (m *mockBackend) PreparePICBurn(ctx context.Context, req backend.BurnPrepareRequest) (*backend.BurnPreparation, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.BurnPreparation)
	return r, args.Error(1)
}

func (m *mockBackend) SubmitPICBurn(ctx context.Context, req backend.BurnSubmission) (*backend.Ack, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.Ack)
	return r, args.Error(1)
}

func (m *mockBackend) CreateSwapOrder(ctx context.Context, req backend.SwapOrderRequest) (*backend.SwapOrder, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.SwapOrder)
	return r, args.Error(1)
}

func (m *mockBackend) SubmitSwapTransaction(ctx context.Context, req backend.SwapSubmission) (*backend.Ack, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.Ack)
	return r, args.Error(1)
}

func (m *mockBackend) GetSwapOrder(ctx context.Context, orderID int64) (*backend.SwapOrder, error) {
	args := m.Called(ctx, orderID)
	r, _ := args.Get(0).(*backend.SwapOrder)
	return r, args.Error(1)
}

func (m *mockBackend) CreateWithdrawOrder(ctx context.Context, req backend.WithdrawOrderRequest) (*backend.WithdrawOrder, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.WithdrawOrder)
	return r, args.Error(1)
}

func (m *mockBackend) GetWithdrawTransaction(ctx context.Context, orderID int64) (*backend.WithdrawTransaction, error) {
	args := m.Called(ctx, orderID)
	r, _ := args.Get(0).(*backend.WithdrawTransaction)
	return r, args.Error(1)
}

func (m *mockBackend) CheckClaimResult(ctx context.Context, req backend.ClaimCheck) (*backend.Ack, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.Ack)
	return r, args.Error(1)
}

// recorder keeps every phase a run entered.
type recorder struct {
	mu     sync.Mutex
	phases []action.Phase
}

func (r *recorder) OnTransition(prev, next action.Run) {
	if prev.Phase == next.Phase {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, next.Phase)
}

func (r *recorder) Phases() []action.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]action.Phase(nil), r.phases...)
}

type harness struct {
	backend *mockBackend
	signer  *mockSigner
	chain   *mockConfirmer
	rec     *recorder
	deps    Deps
}

func newHarness() *harness {
	h := &harness{
		backend: &mockBackend{},
		signer:  &mockSigner{},
		chain:   &mockConfirmer{},
		rec:     &recorder{},
	}
	h.deps = Deps{
		Wallet:        h.signer,
		Receipts:      h.chain,
		Confirmations: 1,
		Poll:          poller.Options{MaxAttempts: 3, Interval: time.Millisecond},
		Log:           zerolog.Nop(),
		Observers:     []action.Observer{h.rec},
	}
	return h
}

// expectChain makes the wallet return sentHash and the receipt wait succeed.
func (h *harness) expectChain() {
	h.signer.On("SignAndSend", mock.Anything, mock.Anything).Return(sentHash, nil)
	h.chain.On("Wait", mock.Anything, sentHash, uint64(1)).
		Return(receiptOK(), nil)
}

func tokenParams(data string) backend.TxParams {
	return backend.TxParams{To: tokenAddr.Hex(), Data: data, Value: "0", ChainID: 56}
}

// assertMonotonic checks that phases only move forward and end in exactly one
// terminal phase.
func assertMonotonic(t *testing.T, flow action.Flow, phases []action.Phase) {
	t.Helper()
	if !assert.NotEmpty(t, phases) {
		return
	}
	rank := map[action.Phase]int{}
	for i, p := range flow.Phases {
		rank[p] = i + 1
	}
	last := 0
	for i, p := range phases {
		if p.IsTerminal() {
			assert.Equal(t, len(phases)-1, i, "terminal phase %s is not last in %v", p, phases)
			continue
		}
		r, ok := rank[p]
		assert.True(t, ok, "unknown phase %s", p)
		assert.Greater(t, r, last, "phase %s out of order in %v", p, phases)
		last = r
	}
	assert.True(t, phases[len(phases)-1].IsTerminal(), "run did not end in a terminal phase: %v", phases)
}

func common0() common.Hash { return common.Hash{} }

func receiptOK() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}
}
