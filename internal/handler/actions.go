package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/backend"
	"github.com/xueqianLu/payfi/internal/flows"
)

const maxRequestBytes = 1 << 16

// Backend is every backend call the five flows make. *backend.Client implements it.
type Backend interface {
	flows.PurchaseBackend
	flows.StakeBackend
	flows.BurnBackend
	flows.SwapBackend
	flows.WithdrawBackend
}

// ActionsHandler starts actions on fresh machines and answers with the initial run.
type ActionsHandler struct {
	backend  Backend
	deps     flows.Deps
	registry *Registry
	log      zerolog.Logger
}

// NewActionsHandler creates a new ActionsHandler.
func NewActionsHandler(b Backend, deps flows.Deps, registry *Registry, log zerolog.Logger) *ActionsHandler {
	return &ActionsHandler{backend: b, deps: deps, registry: registry, log: log}
}

// Purchase handles POST /actions/purchase.
func (h *ActionsHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req backend.CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	f := flows.NewPurchase(h.backend, h.deps)
	h.start(w, action.KindPurchase, f, func(ctx context.Context) action.Run { return f.Purchase(ctx, req) })
}

// Stake handles POST /actions/stake.
func (h *ActionsHandler) Stake(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	nft := flows.NFT{TokenID: req.TokenID, Staked: req.Staked}
	if err := nft.Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	f := flows.NewStake(h.backend, h.deps)
	h.start(w, action.KindStake, f, func(ctx context.Context) action.Run { return f.Stake(ctx, nft) })
}

// Burn handles POST /actions/burn.
func (h *ActionsHandler) Burn(w http.ResponseWriter, r *http.Request) {
	var req BurnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := flows.ValidateBurnAmount(req.USDTAmount); err != nil {
		writeValidation(w, err)
		return
	}
	f := flows.NewBurn(h.backend, h.deps)
	h.start(w, action.KindBurn, f, func(ctx context.Context) action.Run { return f.Burn(ctx, req.USDTAmount) })
}

// Swap handles POST /actions/swap.
func (h *ActionsHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var req backend.SwapOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	f := flows.NewSwap(h.backend, h.deps)
	h.start(w, action.KindSwap, f, func(ctx context.Context) action.Run { return f.Swap(ctx, req) })
}

// Withdraw handles POST /actions/withdraw.
func (h *ActionsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req backend.WithdrawOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	f := flows.NewWithdraw(h.backend, h.deps)
	h.start(w, action.KindWithdraw, f, func(ctx context.Context) action.Run { return f.Withdraw(ctx, req) })
}

// ClaimWithdraw handles POST /actions/withdraw/{orderID}/claim.
func (h *ActionsHandler) ClaimWithdraw(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	f := flows.NewWithdraw(h.backend, h.deps)
	h.start(w, action.KindWithdraw, f, func(ctx context.Context) action.Run { return f.ClaimWithdraw(ctx, orderID) })
}

func (h *ActionsHandler) start(w http.ResponseWriter, kind action.Kind, r flows.Runner, exec func(context.Context) action.Run) {
	run, err := h.registry.Start(kind, r, exec)
	if errors.Is(err, ErrActionBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("action", string(kind)).Msg("failed to start run")
		writeError(w, http.StatusInternalServerError, "Failed to start action")
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *ActionsHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, err error) {
	msg, kind := action.Describe(err, "Invalid request")
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Kind: string(kind)})
}
