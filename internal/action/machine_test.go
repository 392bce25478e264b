package action

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *recorder) OnTransition(prev, next Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev.Phase != next.Phase {
		r.phases = append(r.phases, next.Phase)
	}
}

type apiErr struct{ msg string }

func (e apiErr) Error() string       { return "api: " + e.msg }
func (e apiErr) UserMessage() string { return e.msg }
func (e apiErr) ErrorKind() string   { return string(ErrorBackend) }

func testSteps(failAt int, failWith error) []Step {
	phases := []Phase{"preparing", PhaseSigning, "confirming", "submitting"}
	steps := make([]Step, 0, len(phases))
	for i, p := range phases {
		i, p := i, p
		steps = append(steps, Step{Phase: p, Do: func(ctx context.Context, sc *StepContext) error {
			if i == failAt {
				return failWith
			}
			if p == PhaseSigning {
				return sc.SetTxHash(common.HexToHash("0xabc"))
			}
			return nil
		}})
	}
	return steps
}

func TestMachine_ExecuteSuccess(t *testing.T) {
	rec := &recorder{}
	m := NewMachine(testFlow, zerolog.Nop(), rec)

	run := m.Execute(context.Background(), testSteps(-1, nil))
	assert.Equal(t, PhaseSuccess, run.Phase)
	require.NotNil(t, run.TxHash)
	assert.Equal(t, []Phase{"preparing", PhaseSigning, "confirming", "submitting", PhaseSuccess}, rec.phases)
}

func TestMachine_FailureAtEachStepEndsInError(t *testing.T) {
	for failAt := 0; failAt < 4; failAt++ {
		rec := &recorder{}
		m := NewMachine(testFlow, zerolog.Nop(), rec)

		run := m.Execute(context.Background(), testSteps(failAt, errors.New("opaque")))
		assert.Equal(t, PhaseError, run.Phase)
		assert.Equal(t, "burn failed", run.ErrorMessage)
		assert.Equal(t, ErrorInternal, run.ErrorKind)

		// strictly increasing ranks, exactly one terminal phase at the end
		last := -1
		for i, p := range rec.phases {
			r, ok := testFlow.rank(p)
			require.True(t, ok)
			assert.Greater(t, r, last)
			last = r
			assert.Equal(t, i == len(rec.phases)-1, p.IsTerminal())
		}
		assert.Equal(t, failAt >= 2, run.TxHash != nil, "hash recorded only past signing (failAt=%d)", failAt)
	}
}

func TestMachine_UsesUserMessage(t *testing.T) {
	m := NewMachine(testFlow, zerolog.Nop())
	run := m.Execute(context.Background(), testSteps(0, apiErr{msg: "insufficient PIC balance"}))
	assert.Equal(t, "insufficient PIC balance", run.ErrorMessage)
	assert.Equal(t, ErrorBackend, run.ErrorKind)
}

func TestMachine_EarlySucceed(t *testing.T) {
	m := NewMachine(testFlow, zerolog.Nop())
	called := false
	run := m.Execute(context.Background(), []Step{
		{Phase: "preparing", Do: func(ctx context.Context, sc *StepContext) error {
			return sc.Succeed("settles later")
		}},
		{Phase: PhaseSigning, Do: func(ctx context.Context, sc *StepContext) error {
			called = true
			return nil
		}},
	})
	assert.Equal(t, PhaseSuccess, run.Phase)
	assert.Equal(t, "settles later", run.Caveat)
	assert.False(t, called)
}

func TestMachine_ExecuteOnlyOnce(t *testing.T) {
	m := NewMachine(testFlow, zerolog.Nop())
	first := m.Execute(context.Background(), testSteps(-1, nil))
	second := m.Execute(context.Background(), testSteps(0, errors.New("x")))
	assert.Equal(t, PhaseSuccess, second.Phase)
	assert.Equal(t, first.ID, second.ID)
}

func TestMachine_Reset(t *testing.T) {
	m := NewMachine(testFlow, zerolog.Nop())
	m.Execute(context.Background(), testSteps(1, errors.New("x")))
	require.NoError(t, m.Reset())
	run := m.Snapshot()
	assert.Equal(t, PhaseIdle, run.Phase)
	assert.Empty(t, run.ErrorMessage)
}

func TestMachine_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMachine(testFlow, zerolog.Nop())
	run := m.Execute(ctx, []Step{{Phase: "preparing", Do: func(ctx context.Context, sc *StepContext) error {
		return ctx.Err()
	}}})
	assert.Equal(t, PhaseError, run.Phase)
	assert.Equal(t, ErrorCancelled, run.ErrorKind)
}

func TestDescribe(t *testing.T) {
	msg, kind := Describe(Invalid("usdtAmount", "amount must be a multiple of 100"), "fallback")
	assert.Equal(t, "amount must be a multiple of 100", msg)
	assert.Equal(t, ErrorValidation, kind)

	msg, kind = Describe(errors.New("dial tcp: refused"), "fallback")
	assert.Equal(t, "fallback", msg)
	assert.Equal(t, ErrorInternal, kind)
}
