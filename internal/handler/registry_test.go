package handler

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xueqianLu/payfi/internal/action"
)

// stubRunner is a flows.Runner whose run is set directly by the test.
type stubRunner struct {
	mu  sync.Mutex
	run action.Run
}

func newStub(kind action.Kind) *stubRunner { return &stubRunner{run: action.NewRun(kind)} }

func (s *stubRunner) Snapshot() action.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

func (s *stubRunner) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run.IsLoading() {
		return action.ErrRunInFlight
	}
	s.run = action.NewRun(s.run.Action)
	return nil
}

func (s *stubRunner) StatusText() string { return "" }

func (s *stubRunner) set(p action.Phase) {
	s.mu.Lock()
	s.run.Phase = p
	s.mu.Unlock()
}

func TestRegistry_GuardsConcurrentStarts(t *testing.T) {
	g := NewRegistry(context.Background(), zerolog.Nop())
	release := make(chan struct{})

	first := newStub(action.KindSwap)
	snap, err := g.Start(action.KindSwap, first, func(ctx context.Context) action.Run {
		first.set("creating")
		<-release
		first.set(action.PhaseSuccess)
		return first.Snapshot()
	})
	require.NoError(t, err)
	assert.Equal(t, first.Snapshot().ID, snap.ID)

	_, err = g.Start(action.KindSwap, newStub(action.KindSwap), func(ctx context.Context) action.Run { return action.Run{} })
	assert.ErrorIs(t, err, ErrActionBusy)

	// other kinds are independent
	other := newStub(action.KindBurn)
	_, err = g.Start(action.KindBurn, other, func(ctx context.Context) action.Run { return other.Snapshot() })
	require.NoError(t, err)

	close(release)
	g.Wait()

	_, err = g.Start(action.KindSwap, newStub(action.KindSwap), func(ctx context.Context) action.Run { return action.Run{} })
	assert.NoError(t, err)
	g.Wait()
}

func TestRegistry_ResetRekeysRun(t *testing.T) {
	g := NewRegistry(context.Background(), zerolog.Nop())
	r := newStub(action.KindBurn)
	snap, err := g.Start(action.KindBurn, r, func(ctx context.Context) action.Run {
		r.set(action.PhaseError)
		return r.Snapshot()
	})
	require.NoError(t, err)
	g.Wait()

	fresh, err := g.Reset(snap.ID)
	require.NoError(t, err)
	assert.NotEqual(t, snap.ID, fresh.ID)

	_, err = g.Get(snap.ID)
	assert.ErrorIs(t, err, ErrUnknownRun)
	got, err := g.Get(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, action.PhaseIdle, got.Phase)

	_, err = g.Reset("missing")
	assert.ErrorIs(t, err, ErrUnknownRun)
}

func TestRegistry_EvictsFinishedRuns(t *testing.T) {
	g := NewRegistry(context.Background(), zerolog.Nop())
	var first string
	for i := 0; i < maxTracked+10; i++ {
		r := newStub(action.KindStake)
		r.set(action.PhaseSuccess)
		if i == 0 {
			first = r.Snapshot().ID
		}
		g.mu.Lock()
		g.track(r.Snapshot().ID, r)
		g.mu.Unlock()
	}
	assert.LessOrEqual(t, len(g.runs), maxTracked)
	_, err := g.Get(first)
	assert.ErrorIs(t, err, ErrUnknownRun)
}
