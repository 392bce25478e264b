package action

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/xueqianLu/payfi/internal/txcodec"
)

// Kind identifies one of the orchestrated actions.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindStake    Kind = "stake"
	KindBurn     Kind = "burn"
	KindSwap     Kind = "swap"
	KindWithdraw Kind = "withdraw"
)

// Phase is one named state of an action's state machine.
type Phase string

// Phases shared by every flow. Flow-specific phases are declared next to the flows.
const (
	PhaseIdle    Phase = "idle"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// IsTerminal reports whether no automatic transition leaves p.
func (p Phase) IsTerminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// Run is the state of one in-flight action.
type Run struct {
	ID           string            `json:"id"`
	Action       Kind              `json:"action"`
	Phase        Phase             `json:"phase"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	ErrorKind    ErrorKind         `json:"errorKind,omitempty"`
	OrderID      string            `json:"orderId,omitempty"`
	TxHash       *common.Hash      `json:"transactionHash,omitempty"`
	Intent       *txcodec.Intent   `json:"intent,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Caveat       string            `json:"caveat,omitempty"`
	StartedAt    time.Time         `json:"startedAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// NewRun returns an idle run for the given action.
func NewRun(kind Kind) Run {
	now := time.Now().UTC()
	return Run{
		ID:        uuid.NewString(),
		Action:    kind,
		Phase:     PhaseIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// IsLoading reports whether the run is between idle and a terminal phase.
func (r Run) IsLoading() bool {
	return r.Phase != PhaseIdle && !r.Phase.IsTerminal()
}

// Clone returns a copy that shares no mutable state with r.
func (r Run) Clone() Run {
	c := r
	if r.TxHash != nil {
		h := *r.TxHash
		c.TxHash = &h
	}
	if r.Intent != nil {
		in := *r.Intent
		in.Data = append([]byte(nil), r.Intent.Data...)
		c.Intent = &in
	}
	if r.Details != nil {
		c.Details = make(map[string]string, len(r.Details))
		for k, v := range r.Details {
			c.Details[k] = v
		}
	}
	return c
}
