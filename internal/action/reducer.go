package action

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xueqianLu/payfi/internal/txcodec"
)

var (
	ErrTerminal      = errors.New("run is in a terminal phase")
	ErrBackwards     = errors.New("phase transition does not move forward")
	ErrUnknownPhase  = errors.New("phase is not part of the flow")
	ErrMissingHash   = errors.New("phase requires a transaction hash")
	ErrHashOutOfTurn = errors.New("transaction hash can only be recorded while signing")
	ErrRunInFlight   = errors.New("run is still in flight")
	ErrNotStarted    = errors.New("run has not started")
)

// Event is an input to Reduce.
type Event interface{ isEvent() }

// Start enters the next phase of the flow.
type Start struct{ Phase Phase }

// OrderAssigned records the backend identifier of the order, stake or burn.
type OrderAssigned struct{ ID string }

// IntentResolved records the transaction about to be signed.
type IntentResolved struct{ Intent *txcodec.Intent }

// TxSent records the hash returned by the wallet.
type TxSent struct{ Hash common.Hash }

// Detail stores an action-specific echo field.
type Detail struct{ Key, Value string }

// Succeed ends the run in success. Caveat is set when finalisation is still pending.
type Succeed struct{ Caveat string }

// Fail ends the run in error.
type Fail struct {
	Message string
	Kind    ErrorKind
}

// Reset returns a finished or idle run to a fresh idle state.
type Reset struct{}

func (Start) isEvent()          {}
func (OrderAssigned) isEvent()  {}
func (IntentResolved) isEvent() {}
func (TxSent) isEvent()         {}
func (Detail) isEvent()         {}
func (Succeed) isEvent()        {}
func (Fail) isEvent()           {}
func (Reset) isEvent()          {}

// Reduce applies ev to run and returns the next state. It never mutates run.
func Reduce(flow Flow, run Run, ev Event) (Run, error) {
	if _, ok := ev.(Reset); ok {
		if run.IsLoading() {
			return run, ErrRunInFlight
		}
		next := NewRun(flow.Kind)
		next.Status = flow.StatusText(PhaseIdle)
		return next, nil
	}
	if run.Phase.IsTerminal() {
		return run, fmt.Errorf("%w: %s", ErrTerminal, run.Phase)
	}

	next := run.Clone()
	switch e := ev.(type) {
	case Start:
		to, ok := flow.rank(e.Phase)
		if !ok {
			return run, fmt.Errorf("%w: %s", ErrUnknownPhase, e.Phase)
		}
		from, _ := flow.rank(run.Phase)
		if e.Phase.IsTerminal() || to <= from {
			return run, fmt.Errorf("%w: %s -> %s", ErrBackwards, run.Phase, e.Phase)
		}
		if flow.afterSigning(e.Phase) && run.TxHash == nil {
			return run, fmt.Errorf("%w: %s", ErrMissingHash, e.Phase)
		}
		next.Phase = e.Phase

	case OrderAssigned:
		next.OrderID = e.ID

	case IntentResolved:
		if flow.afterSigning(run.Phase) {
			return run, fmt.Errorf("%w: intent after signing", ErrBackwards)
		}
		next.Intent = e.Intent

	case TxSent:
		if run.Phase != PhaseSigning {
			return run, fmt.Errorf("%w: phase %s", ErrHashOutOfTurn, run.Phase)
		}
		if run.TxHash != nil {
			return run, fmt.Errorf("%w: hash already recorded", ErrHashOutOfTurn)
		}
		h := e.Hash
		next.TxHash = &h

	case Detail:
		if next.Details == nil {
			next.Details = make(map[string]string)
		}
		next.Details[e.Key] = e.Value

	case Succeed:
		if run.Phase == PhaseIdle {
			return run, ErrNotStarted
		}
		next.Phase = PhaseSuccess
		next.Caveat = e.Caveat

	case Fail:
		next.Phase = PhaseError
		next.ErrorMessage = e.Message
		next.ErrorKind = e.Kind

	default:
		return run, fmt.Errorf("unknown event %T", ev)
	}

	next.Status = flow.StatusText(next.Phase)
	return next, nil
}
