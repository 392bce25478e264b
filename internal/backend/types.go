package backend

import (
	"github.com/shopspring/decimal"
)

// TxParams is a structured, unsigned contract call prepared by the backend.
type TxParams struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
	ChainID int64  `json:"chainId"`
}

// Ack is the body of endpoints that only acknowledge a submission.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CreateOrderRequest starts an NFT tier purchase.
type CreateOrderRequest struct {
	TierID       int64  `json:"tierId"`
	Quantity     int    `json:"quantity"`
	PaymentToken string `json:"paymentToken,omitempty"`
}

// CreateOrderResponse carries the new order and its unsigned payment transaction.
type CreateOrderResponse struct {
	OrderID           int64     `json:"orderId"`
	UnsignedTx        string    `json:"unsignedTx,omitempty"`
	TransactionParams *TxParams `json:"transactionParams,omitempty"`
}

// PaymentConfirmation reports the payment transaction of an order.
type PaymentConfirmation struct {
	OrderID         int64  `json:"orderId"`
	TransactionHash string `json:"transactionHash"`
}

// OrderState is the backend lifecycle of an NFT order.
type OrderState string

const (
	OrderPending   OrderState = "pending"
	OrderVerified  OrderState = "verified"
	OrderMinting   OrderState = "minting"
	OrderMinted    OrderState = "minted"
	OrderCompleted OrderState = "completed"
	OrderFailed    OrderState = "failed"
)

// OrderStatus is the polled state of an NFT order.
type OrderStatus struct {
	OrderID int64      `json:"orderId"`
	State   OrderState `json:"state"`
	TokenID int64      `json:"tokenId,omitempty"`
}

// StakeTransactionRequest asks for the staking call of an NFT.
type StakeTransactionRequest struct {
	TokenID int64 `json:"tokenId"`
}

// StakeTransaction is the staking call prepared by the backend.
type StakeTransaction struct {
	ContractAddress string   `json:"contractAddress"`
	UnsignedTx      TxParams `json:"unsignedTx"`
}

// SubmitStakingRequest reports the staking transaction.
type SubmitStakingRequest struct {
	TokenID         int64  `json:"tokenId"`
	TransactionHash string `json:"transactionHash"`
}

// StakeStatus is the backend verdict on a staking transaction.
type StakeStatus string

const (
	StakeConfirmed StakeStatus = "confirmed"
	StakePending   StakeStatus = "pending"
	StakeFailed    StakeStatus = "failed"
)

// StakingResult is the response to SubmitStaking.
type StakingResult struct {
	Status       StakeStatus `json:"status"`
	StakeID      int64       `json:"stakeId,omitempty"`
	StakeTime    int64       `json:"stakeTime,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// BurnPrepareRequest asks for a PIC burn worth USDTAmount.
type BurnPrepareRequest struct {
	USDTAmount decimal.Decimal `json:"usdtAmount"`
}

// BurnPreparation is the burn intent and its contract call.
type BurnPreparation struct {
	BurnID            int64           `json:"burnId"`
	PICAmount         decimal.Decimal `json:"picAmount"`
	TransactionParams TxParams        `json:"transactionParams"`
}

// BurnSubmission reports the burn transaction.
type BurnSubmission struct {
	BurnID          int64  `json:"burnId"`
	TransactionHash string `json:"transactionHash"`
}

// SwapOrderRequest starts a token swap.
type SwapOrderRequest struct {
	FromToken string          `json:"fromToken"`
	ToToken   string          `json:"toToken"`
	Amount    decimal.Decimal `json:"amount"`
	Slippage  decimal.Decimal `json:"slippage"`
}

// SwapStatus is the numeric swap order state used by the backend.
type SwapStatus int

const (
	SwapCreated       SwapStatus = 0
	SwapPaid          SwapStatus = 1
	SwapChecked       SwapStatus = 2
	SwapCanceled      SwapStatus = 3
	SwapPaymentFailed SwapStatus = 4
)

func (s SwapStatus) String() string {
	switch s {
	case SwapCreated:
		return "Created"
	case SwapPaid:
		return "Paid"
	case SwapChecked:
		return "Checked"
	case SwapCanceled:
		return "Canceled"
	case SwapPaymentFailed:
		return "PaymentFailed"
	default:
		return "Unknown"
	}
}

// SwapOrder is a swap order snapshot.
type SwapOrder struct {
	OrderID           int64           `json:"orderId"`
	FromToken         string          `json:"fromToken"`
	ToToken           string          `json:"toToken"`
	FromAmount        decimal.Decimal `json:"fromAmount"`
	ToAmount          decimal.Decimal `json:"toAmount"`
	Status            SwapStatus      `json:"status"`
	TransactionHash   string          `json:"transactionHash,omitempty"`
	TransactionParams *TxParams       `json:"transactionParams,omitempty"`
}

// SwapSubmission reports the swap transaction.
type SwapSubmission struct {
	OrderID         int64  `json:"orderId"`
	TransactionHash string `json:"transactionHash"`
}

// WithdrawOrderRequest starts a reward withdrawal.
type WithdrawOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Token  string          `json:"token"`
}

// WithdrawOrder is a withdrawal order.
type WithdrawOrder struct {
	OrderID int64           `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
	Token   string          `json:"token"`
	Status  string          `json:"status"`
}

// WithdrawTransaction is the unsigned claim transaction of a withdrawal order.
type WithdrawTransaction struct {
	OrderID    int64  `json:"orderId"`
	UnsignedTx string `json:"unsignedTx"`
}

// ClaimCheck reports the claim transaction of a withdrawal order.
type ClaimCheck struct {
	OrderID         int64  `json:"orderId"`
	TransactionHash string `json:"transactionHash"`
}
