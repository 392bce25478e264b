package action

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/xueqianLu/payfi/internal/txcodec"
)

// Observer is notified after every accepted transition.
type Observer interface {
	OnTransition(prev, next Run)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(prev, next Run)

func (f ObserverFunc) OnTransition(prev, next Run) { f(prev, next) }

// Step is one unit of work executed while the run is in Phase.
type Step struct {
	Phase Phase
	Do    func(ctx context.Context, sc *StepContext) error
}

// Machine owns a single Run and drives it through a list of steps. Once the run is
// terminal the machine must be Reset before it executes again.
type Machine struct {
	flow      Flow
	log       zerolog.Logger
	observers []Observer

	mu  sync.Mutex
	run Run
}

// NewMachine creates a machine holding an idle run of flow.
func NewMachine(flow Flow, log zerolog.Logger, observers ...Observer) *Machine {
	run := NewRun(flow.Kind)
	run.Status = flow.StatusText(PhaseIdle)
	return &Machine{
		flow:      flow,
		log:       log.With().Str("action", string(flow.Kind)).Str("run_id", run.ID).Logger(),
		observers: observers,
		run:       run,
	}
}

// Flow returns the flow the machine was built for.
func (m *Machine) Flow() Flow { return m.flow }

// Snapshot returns a copy of the current run.
func (m *Machine) Snapshot() Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.Clone()
}

// Reset returns a finished run to idle. It fails while the run is in flight: an
// already broadcast transaction cannot be recalled.
func (m *Machine) Reset() error {
	return m.dispatch(Reset{})
}

func (m *Machine) dispatch(ev Event) error {
	m.mu.Lock()
	prev := m.run
	next, err := Reduce(m.flow, prev, ev)
	if err != nil {
		m.mu.Unlock()
		m.log.Error().Err(err).Str("phase", string(prev.Phase)).Msgf("rejected %T", ev)
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	m.run = next
	observers := m.observers
	m.mu.Unlock()

	if prev.Phase != next.Phase {
		m.log.Info().Str("from", string(prev.Phase)).Str("phase", string(next.Phase)).Msg("phase changed")
	}
	for _, o := range observers {
		o.OnTransition(prev.Clone(), next.Clone())
	}
	return nil
}

// Execute runs steps in order, each after entering its phase. The first failing step
// ends the run in error; otherwise the run ends in success unless a step already
// finished it. Execute never returns an error: the outcome is the returned Run.
func (m *Machine) Execute(ctx context.Context, steps []Step) Run {
	if run := m.Snapshot(); run.Phase != PhaseIdle {
		m.log.Error().Str("phase", string(run.Phase)).Msg("execute called on a used machine")
		return run
	}

	sc := &StepContext{m: m}
	for _, step := range steps {
		if step.Phase != "" && step.Phase != m.Snapshot().Phase {
			if err := m.dispatch(Start{Phase: step.Phase}); err != nil {
				m.fail(err)
				return m.Snapshot()
			}
		}
		if err := step.Do(ctx, sc); err != nil {
			m.fail(err)
			return m.Snapshot()
		}
		if sc.done {
			return m.Snapshot()
		}
	}
	if err := m.dispatch(Succeed{}); err != nil {
		m.fail(err)
	}
	return m.Snapshot()
}

func (m *Machine) fail(err error) {
	msg, kind := Describe(err, m.flow.DefaultError)
	m.log.Warn().Err(err).Str("kind", string(kind)).Msg("action failed")
	if dErr := m.dispatch(Fail{Message: msg, Kind: kind}); dErr != nil {
		m.log.Error().Err(dErr).Msg("could not record failure")
	}
}

// StepContext gives steps access to the run they are advancing.
type StepContext struct {
	m    *Machine
	done bool
}

// Run returns a snapshot of the run.
func (sc *StepContext) Run() Run { return sc.m.Snapshot() }

// Logger returns the machine's logger.
func (sc *StepContext) Logger() *zerolog.Logger { return &sc.m.log }

// Enter moves the run to phase p within the current step.
func (sc *StepContext) Enter(p Phase) error { return sc.m.dispatch(Start{Phase: p}) }

// SetOrderID records the backend identifier.
func (sc *StepContext) SetOrderID(id string) error { return sc.m.dispatch(OrderAssigned{ID: id}) }

// SetIntent records the transaction to be signed.
func (sc *StepContext) SetIntent(in *txcodec.Intent) error {
	return sc.m.dispatch(IntentResolved{Intent: in})
}

// SetTxHash records the wallet's transaction hash.
func (sc *StepContext) SetTxHash(h common.Hash) error { return sc.m.dispatch(TxSent{Hash: h}) }

// SetDetail records an action-specific echo field.
func (sc *StepContext) SetDetail(key, value string) error {
	return sc.m.dispatch(Detail{Key: key, Value: value})
}

// Succeed ends the run in success and skips the remaining steps.
func (sc *StepContext) Succeed(caveat string) error {
	if err := sc.m.dispatch(Succeed{Caveat: caveat}); err != nil {
		return err
	}
	sc.done = true
	return nil
}
