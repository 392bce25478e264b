package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xueqianLu/payfi/internal/action"
)

// ActionMetrics records run transitions. It is an action.Observer.
type ActionMetrics struct {
	PhaseTransitions *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RunsInFlight     *prometheus.GaugeVec
}

// NewActionMetrics registers the action metrics with reg.
func NewActionMetrics(reg prometheus.Registerer) *ActionMetrics {
	factory := promauto.With(reg)
	return &ActionMetrics{
		PhaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payfi_action_phase_transitions_total",
			Help: "Number of phases entered, by action and phase",
		}, []string{"action", "phase"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payfi_action_runs_total",
			Help: "Finished action runs, by result and error kind",
		}, []string{"action", "result", "reason"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payfi_action_run_duration_seconds",
			Help:    "Time from start to a terminal phase",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"action"}),
		RunsInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "payfi_action_runs_in_flight",
			Help: "Runs between idle and a terminal phase",
		}, []string{"action"}),
	}
}

// OnTransition implements action.Observer.
func (m *ActionMetrics) OnTransition(prev, next action.Run) {
	if prev.Phase == next.Phase {
		return
	}
	kind := string(next.Action)
	m.PhaseTransitions.WithLabelValues(kind, string(next.Phase)).Inc()

	switch {
	case prev.Phase == action.PhaseIdle && next.IsLoading():
		m.RunsInFlight.WithLabelValues(kind).Inc()
	case prev.IsLoading() && next.Phase.IsTerminal():
		m.RunsInFlight.WithLabelValues(kind).Dec()
	}

	if !next.Phase.IsTerminal() {
		return
	}
	result, reason := "success", ""
	if next.Phase == action.PhaseError {
		result, reason = "error", string(next.ErrorKind)
	} else if next.Caveat != "" {
		reason = "caveat"
	}
	m.RunsTotal.WithLabelValues(kind, result, reason).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(next.UpdatedAt.Sub(next.StartedAt).Seconds())
}
