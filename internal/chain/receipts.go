package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// chainError is a sentinel that carries a user-facing message.
type chainError struct {
	kind string
	msg  string
}

func (e *chainError) Error() string       { return e.msg }
func (e *chainError) UserMessage() string { return e.msg }
func (e *chainError) ErrorKind() string   { return e.kind }

var (
	// ErrReverted means the transaction was mined but its execution failed.
	ErrReverted error = &chainError{kind: "reverted", msg: "Transaction reverted on-chain"}
	// ErrReceiptTimeout means no receipt arrived within the configured wait.
	ErrReceiptTimeout error = &chainError{kind: "receipt_timeout", msg: "Transaction is still pending, check back later"}
)

// ReceiptClient is the subset of the Ethereum RPC used to wait for receipts.
type ReceiptClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Dial initialises an Ethereum RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// ReceiptWaiter polls the chain until a transaction is mined and confirmed.
type ReceiptWaiter struct {
	client       ReceiptClient
	pollInterval time.Duration
	timeout      time.Duration
	log          zerolog.Logger
}

// NewReceiptWaiter creates a waiter. A zero timeout waits until ctx is done.
func NewReceiptWaiter(client ReceiptClient, pollInterval, timeout time.Duration, log zerolog.Logger) *ReceiptWaiter {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &ReceiptWaiter{
		client:       client,
		pollInterval: pollInterval,
		timeout:      timeout,
		log:          log,
	}
}

// Wait blocks until txHash has at least confirmations blocks on top of (and including)
// its own. A reverted receipt is returned together with ErrReverted.
func (w *ReceiptWaiter) Wait(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error) {
	if (txHash == common.Hash{}) {
		return nil, fmt.Errorf("tx hash required")
	}
	if confirmations == 0 {
		confirmations = 1
	}

	waitCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.check(waitCtx, txHash, confirmations)
		if err != nil {
			return receipt, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			w.log.Warn().Str("tx", txHash.Hex()).Dur("timeout", w.timeout).Msg("receipt wait timed out")
			return nil, ErrReceiptTimeout
		case <-ticker.C:
		}
	}
}

// check returns (nil, nil) while the transaction is pending or not deep enough.
func (w *ReceiptWaiter) check(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error) {
	receipt, err := w.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) || ctx.Err() != nil {
			return nil, nil
		}
		w.log.Warn().Err(err).Str("tx", txHash.Hex()).Msg("fetch receipt failed, retrying")
		return nil, nil
	}
	if receipt == nil {
		return nil, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s: %w", txHash.Hex(), ErrReverted)
	}
	if confirmations <= 1 || receipt.BlockNumber == nil {
		return receipt, nil
	}

	header, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil || header == nil || header.Number == nil {
		return nil, nil
	}
	if header.Number.Cmp(receipt.BlockNumber) < 0 {
		return nil, nil
	}
	confirmed := new(big.Int).Sub(header.Number, receipt.BlockNumber)
	confirmed.Add(confirmed, big.NewInt(1))
	if confirmed.Cmp(new(big.Int).SetUint64(confirmations)) < 0 {
		return nil, nil
	}
	return receipt, nil
}
