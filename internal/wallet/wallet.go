package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/xueqianLu/payfi/internal/txcodec"
)

// gasBufferPercent is added on top of the node's gas estimate.
const gasBufferPercent = 20

// ChainBackend is the part of the Ethereum RPC a wallet needs to build and broadcast
// a transaction. *ethclient.Client satisfies it.
type ChainBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Approver is asked before every signature. Returning false rejects the request.
type Approver func(ctx context.Context, from common.Address, intent *txcodec.Intent, chainID *big.Int) (bool, error)

// AutoApprove approves every request.
func AutoApprove(context.Context, common.Address, *txcodec.Intent, *big.Int) (bool, error) {
	return true, nil
}

// Wallet builds, signs and broadcasts transactions for one account.
type Wallet struct {
	km       KeyManager
	from     common.Address
	backend  ChainBackend
	chainID  *big.Int
	approver Approver
	log      zerolog.Logger
}

// New creates a wallet. When from is the zero address the first account of km is used.
func New(km KeyManager, from common.Address, backend ChainBackend, chainID *big.Int, approver Approver, log zerolog.Logger) (*Wallet, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id required")
	}
	accounts := km.GetAccounts()
	if (from == common.Address{}) {
		if len(accounts) == 0 {
			return nil, errors.New("key manager has no accounts")
		}
		from = accounts[0]
	} else if !containsAddress(accounts, from) {
		return nil, fmt.Errorf("account %s is not managed by the key manager", from.Hex())
	}
	if approver == nil {
		approver = AutoApprove
	}
	return &Wallet{
		km:       km,
		from:     from,
		backend:  backend,
		chainID:  new(big.Int).Set(chainID),
		approver: approver,
		log:      log.With().Str("from", from.Hex()).Logger(),
	}, nil
}

// Address returns the signing account.
func (w *Wallet) Address() common.Address { return w.from }

// ChainID returns the chain the wallet signs for.
func (w *Wallet) ChainID() *big.Int { return new(big.Int).Set(w.chainID) }

// SignAndSend asks for approval, signs intent as an EIP-155 transaction and
// broadcasts it. A declined approval returns ErrUserRejected.
func (w *Wallet) SignAndSend(ctx context.Context, intent *txcodec.Intent) (common.Hash, error) {
	if intent == nil {
		return common.Hash{}, errors.New("no transaction to sign")
	}

	ok, err := w.approver(ctx, w.from, intent, w.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("approval failed: %w", err)
	}
	if !ok {
		return common.Hash{}, ErrUserRejected
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	to := intent.To
	value := intent.ValueInt()
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.from,
		To:    &to,
		Value: value,
		Data:  intent.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas += gas * gasBufferPercent / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     intent.Data,
	})

	signed, err := w.km.SignTx(w.from, tx, w.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.log.Info().
		Str("tx", signed.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gas).
		Msg("transaction broadcast")
	return signed.Hash(), nil
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
