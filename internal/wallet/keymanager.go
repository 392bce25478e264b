package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// KeyManager abstracts where signing keys live: a local keystore, Vault, or a remote
// signer service.
type KeyManager interface {
	// GetAccounts returns the addresses the KeyManager can sign for.
	GetAccounts() []common.Address

	// SignTx signs tx with the key of address. chainID is used for EIP-155 replay protection.
	SignTx(address common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}
