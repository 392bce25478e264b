package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xueqianLu/payfi/internal/handler"
)

// Routes groups the handlers mounted by NewRouter.
type Routes struct {
	Health  http.Handler
	Wallet  http.Handler
	Actions *handler.ActionsHandler
	Runs    *handler.RunsHandler
	// Auth guards everything except health and metrics.
	Auth     func(http.Handler) http.Handler
	Gatherer prometheus.Gatherer
}

// NewRouter builds the orchestration API.
func NewRouter(rt Routes, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog(log))
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/health", rt.Health)
	if rt.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(p chi.Router) {
		if rt.Auth != nil {
			p.Use(rt.Auth)
		}
		if rt.Wallet != nil {
			p.Method(http.MethodGet, "/wallet", rt.Wallet)
		}
		p.Route("/actions", func(a chi.Router) {
			a.Post("/purchase", rt.Actions.Purchase)
			a.Post("/stake", rt.Actions.Stake)
			a.Post("/burn", rt.Actions.Burn)
			a.Post("/swap", rt.Actions.Swap)
			a.Post("/withdraw", rt.Actions.Withdraw)
			a.Post("/withdraw/{orderID}/claim", rt.Actions.ClaimWithdraw)
		})
		p.Route("/runs", func(rr chi.Router) {
			rr.Get("/", rt.Runs.List)
			rr.Get("/{id}", rt.Runs.Get)
			rr.Post("/{id}/reset", rt.Runs.Reset)
		})
	})
	return r
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
