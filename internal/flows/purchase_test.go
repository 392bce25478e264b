package flows

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/txcodec"
)

var transferData = []byte{0xa9, 0x05, 0x9c, 0xbb, 0x01, 0x02}

// unsignedTx encodes [nonce, gasPrice, gas, to, value, data, chainId, 0, 0].
func unsignedTx(t *testing.T, value int64) string {
	t.Helper()
	b, err := rlp.EncodeToBytes([]interface{}{
		uint64(1), big.NewInt(5_000_000_000), uint64(60000), tokenAddr,
		big.NewInt(value), transferData, big.NewInt(56), uint(0), uint(0),
	})
	require.NoError(t, err)
	return hexutil.Encode(b)
}

func (h *harness) expectPurchaseUntilVerify(t *testing.T) {
	h.backend.On("CreateOrder", mock.Anything, backend.CreateOrderRequest{TierID: 2, Quantity: 1}).
		Return(&backend.CreateOrderResponse{OrderID: 11, UnsignedTx: unsignedTx(t, 0)}, nil)
	h.signer.On("SignAndSend", mock.Anything, mock.MatchedBy(func(in *txcodec.Intent) bool {
		return in.To == tokenAddr && string(in.Data) == string(transferData)
	})).Return(sentHash, nil)
	h.chain.On("Wait", mock.Anything, sentHash, uint64(1)).Return(receiptOK(), nil)
	h.backend.On("SubmitPaymentConfirmation", mock.Anything, backend.PaymentConfirmation{OrderID: 11, TransactionHash: sentHash.Hex()}).
		Return(&backend.Ack{Success: true}, nil)
}

func orderState(s backend.OrderState) *backend.OrderStatus {
	return &backend.OrderStatus{OrderID: 11, State: s}
}

func TestPurchase_MintsAfterVerification(t *testing.T) {
	h := newHarness()
	h.expectPurchaseUntilVerify(t)
	h.backend.On("GetOrderStatus", mock.Anything, int64(11)).Return(orderState(backend.OrderVerified), nil).Once()
	h.backend.On("GetOrderStatus", mock.Anything, int64(11)).Return(orderState(backend.OrderMinting), nil).Once()
	h.backend.On("GetOrderStatus", mock.Anything, int64(11)).
		Return(&backend.OrderStatus{OrderID: 11, State: backend.OrderCompleted, TokenID: 808}, nil).Once()

	f := NewPurchase(h.backend, h.deps)
	run := f.Purchase(context.Background(), backend.CreateOrderRequest{TierID: 2, Quantity: 1})

	assert.Equal(t, action.PhaseSuccess, run.Phase)
	assert.Empty(t, run.Caveat)
	assert.Equal(t, "11", run.OrderID)
	assert.Equal(t, "808", run.Details["tokenId"])
	assert.Equal(t, "completed", run.Details["orderState"])
	assert.Equal(t, []action.Phase{
		PhaseCreating, action.PhaseSigning, PhaseConfirming, PhaseSubmitting,
		PhaseVerifying, PhaseMinting, action.PhaseSuccess,
	}, h.rec.Phases())
	assertMonotonic(t, PurchaseFlow, h.rec.Phases())
	h.backend.AssertExpectations(t)
}

func TestPurchase_PollTimeoutResolvesAsSuccess(t *testing.T) {
	h := newHarness()
	h.expectPurchaseUntilVerify(t)
	h.backend.On("GetOrderStatus", mock.Anything, int64(11)).Return(orderState(backend.OrderPending), nil)

	run := NewPurchase(h.backend, h.deps).Purchase(context.Background(), backend.CreateOrderRequest{TierID: 2, Quantity: 1})

	assert.Equal(t, action.PhaseSuccess, run.Phase)
	assert.Equal(t, CaveatFinalisationPending, run.Caveat)
	h.backend.AssertNumberOfCalls(t, "GetOrderStatus", 3)
}

func TestPurchase_OrderFailure(t *testing.T) {
	h := newHarness()
	h.expectPurchaseUntilVerify(t)
	h.backend.On("GetOrderStatus", mock.Anything, int64(11)).Return(orderState(backend.OrderFailed), nil)

	run := NewPurchase(h.backend, h.deps).Purchase(context.Background(), backend.CreateOrderRequest{TierID: 2, Quantity: 1})

	assert.Equal(t, action.PhaseError, run.Phase)
	assert.Equal(t, "Order failed on the backend", run.ErrorMessage)
	assertMonotonic(t, PurchaseFlow, h.rec.Phases())
}

func TestPurchase_SubmitFailureIsSurfaced(t *testing.T) {
	h := newHarness()
	h.backend.On("CreateOrder", mock.Anything, mock.Anything).
		Return(&backend.CreateOrderResponse{OrderID: 11, UnsignedTx: unsignedTx(t, 0)}, nil)
	h.expectChain()
	h.backend.On("SubmitPaymentConfirmation", mock.Anything, mock.Anything).
		Return(nil, &backend.APIError{Status: 409, Code: 1003, Message: "payment already recorded"})

	run := NewPurchase(h.backend, h.deps).Purchase(context.Background(), backend.CreateOrderRequest{TierID: 2, Quantity: 1})

	assert.Equal(t, action.PhaseError, run.Phase)
	assert.Equal(t, "payment already recorded", run.ErrorMessage)
	h.backend.AssertNotCalled(t, "GetOrderStatus", mock.Anything, mock.Anything)
}

func TestPurchase_UnresolvableTransaction(t *testing.T) {
	h := newHarness()
	h.backend.On("CreateOrder", mock.Anything, mock.Anything).
		Return(&backend.CreateOrderResponse{OrderID: 11, UnsignedTx: "0x1234"}, nil)

	run := NewPurchase(h.backend, h.deps).Purchase(context.Background(), backend.CreateOrderRequest{TierID: 2, Quantity: 1})

	assert.Equal(t, action.PhaseError, run.Phase)
	assert.Equal(t, action.ErrorDecode, run.ErrorKind)
	assert.Equal(t, "Could not parse transaction data", run.ErrorMessage)
	h.signer.AssertNumberOfCalls(t, "SignAndSend", 0)
}

func TestPurchase_StructuredParams(t *testing.T) {
	h := newHarness()
	params := tokenParams("0xa9059cbb")
	params.Value = "0x10"
	h.backend.On("CreateOrder", mock.Anything, mock.Anything).
		Return(&backend.CreateOrderResponse{OrderID: 12, TransactionParams: &params}, nil)
	h.signer.On("SignAndSend", mock.Anything, mock.MatchedBy(func(in *txcodec.Intent) bool {
		return in.ValueInt().Int64() == 16
	})).Return(sentHash, nil)
	h.chain.On("Wait", mock.Anything, sentHash, uint64(1)).Return(receiptOK(), nil)
	h.backend.On("SubmitPaymentConfirmation", mock.Anything, mock.Anything).Return(&backend.Ack{Success: true}, nil)
	h.backend.On("GetOrderStatus", mock.Anything, int64(12)).Return(orderState(backend.OrderMinted), nil)

	run := NewPurchase(h.backend, h.deps).Purchase(context.Background(), backend.CreateOrderRequest{TierID: 2, Quantity: 1})
	assert.Equal(t, action.PhaseSuccess, run.Phase)
	h.signer.AssertExpectations(t)
}

func TestPurchase_Validation(t *testing.T) {
	h := newHarness()
	run := NewPurchase(h.backend, h.deps).Purchase(context.Background(), backend.CreateOrderRequest{TierID: 2})
	assert.Equal(t, action.PhaseError, run.Phase)
	assert.Equal(t, action.ErrorValidation, run.ErrorKind)
	h.backend.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestClassifyOrder(t *testing.T) {
	assert.Equal(t, "pending", ClassifyOrder(orderState(backend.OrderVerified)).String())
	assert.Equal(t, "pending", ClassifyOrder(orderState("refunding")).String())
	assert.Equal(t, "success", ClassifyOrder(orderState(backend.OrderMinted)).String())
	assert.Equal(t, "failure", ClassifyOrder(orderState(backend.OrderFailed)).String())
}
