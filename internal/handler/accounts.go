package handler

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// WalletHandler reports which account the service signs with.
type WalletHandler struct {
	address common.Address
	chainID *big.Int
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(address common.Address, chainID *big.Int) *WalletHandler {
	return &WalletHandler{address: address, chainID: chainID}
}

// ServeHTTP implements the http.Handler interface.
func (h *WalletHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := WalletResponse{Address: h.address.Hex()}
	if h.chainID != nil {
		resp.ChainID = h.chainID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
