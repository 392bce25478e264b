package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xueqianLu/payfi/internal/action"
)

// BurnRequest starts a PIC burn.
type BurnRequest struct {
	USDTAmount decimal.Decimal `json:"usdtAmount"`
}

// StakeRequest starts staking one NFT.
type StakeRequest struct {
	TokenID int64 `json:"tokenId"`
	Staked  bool  `json:"staked"`
}

// RunsResponse lists journaled runs.
type RunsResponse struct {
	Runs []action.Run `json:"runs"`
}

// WalletResponse describes the signing account of the service.
type WalletResponse struct {
	Address string `json:"address"`
	ChainID string `json:"chainId"`
}

// ErrorResponse represents a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
