package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/journal"
)

// RunStore is the journal surface the runs endpoints read. *journal.Journal implements it.
type RunStore interface {
	Get(ctx context.Context, id string) (action.Run, error)
	List(ctx context.Context, kind action.Kind, limit int) ([]action.Run, error)
}

// RunsHandler serves run snapshots.
type RunsHandler struct {
	registry *Registry
	store    RunStore
	log      zerolog.Logger
}

// NewRunsHandler creates a new RunsHandler.
func NewRunsHandler(registry *Registry, store RunStore, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{registry: registry, store: store, log: log}
}

// Get handles GET /runs/{id}. Live runs win over their journaled copy.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if run, err := h.registry.Get(id); err == nil {
		writeJSON(w, http.StatusOK, run)
		return
	}
	run, err := h.store.Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("failed to load run")
		writeError(w, http.StatusInternalServerError, "Failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Reset handles POST /runs/{id}/reset.
func (h *RunsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	run, err := h.registry.Reset(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrUnknownRun):
		writeError(w, http.StatusNotFound, "Run not found")
	case errors.Is(err, action.ErrRunInFlight):
		writeError(w, http.StatusConflict, "Run is still in progress")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

// List handles GET /runs?action=&limit=.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := action.Kind(q.Get("action"))
	switch kind {
	case "", action.KindPurchase, action.KindStake, action.KindBurn, action.KindSwap, action.KindWithdraw:
	default:
		writeError(w, http.StatusBadRequest, "Unknown action")
		return
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	runs, err := h.store.List(r.Context(), kind, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list runs")
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}
