package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xueqianLu/payfi/internal/action"
	"github.com/xueqianLu/payfi/internal/flows"
)

var (
	// ErrActionBusy is returned when a run of the same action is already in flight.
	ErrActionBusy = errors.New("an action of this kind is already in progress")
	// ErrUnknownRun is returned for run ids the registry does not hold.
	ErrUnknownRun = errors.New("run not found")
)

// maxTracked bounds how many runs stay in memory. Finished runs beyond it are
// evicted; the journal still has them.
const maxTracked = 256

// Registry tracks the runs started through the service and guards against starting
// a second run of an action while one is in flight.
type Registry struct {
	ctx context.Context
	log zerolog.Logger

	mu     sync.Mutex
	runs   map[string]flows.Runner
	order  []string
	active map[action.Kind]string
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. Runs execute under ctx, not under the request
// that started them.
func NewRegistry(ctx context.Context, log zerolog.Logger) *Registry {
	return &Registry{
		ctx:    ctx,
		log:    log,
		runs:   make(map[string]flows.Runner),
		active: make(map[action.Kind]string),
	}
}

// Start registers r and executes exec in the background. It returns the run as it
// was before exec began.
func (g *Registry) Start(kind action.Kind, r flows.Runner, exec func(ctx context.Context) action.Run) (action.Run, error) {
	snap := r.Snapshot()

	g.mu.Lock()
	if id, ok := g.active[kind]; ok {
		g.mu.Unlock()
		g.log.Warn().Str("action", string(kind)).Str("active_run", id).Msg("refused concurrent start")
		return action.Run{}, ErrActionBusy
	}
	g.active[kind] = snap.ID
	g.track(snap.ID, r)
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		final := exec(g.ctx)
		g.mu.Lock()
		delete(g.active, kind)
		g.mu.Unlock()
		g.log.Info().Str("action", string(kind)).Str("run_id", final.ID).
			Str("phase", string(final.Phase)).Msg("run finished")
	}()
	return snap, nil
}

// Get returns the live snapshot of a tracked run.
func (g *Registry) Get(id string) (action.Run, error) {
	g.mu.Lock()
	r, ok := g.runs[id]
	g.mu.Unlock()
	if !ok {
		return action.Run{}, ErrUnknownRun
	}
	return r.Snapshot(), nil
}

// Reset resets a tracked run. The reset run has a new id and replaces the old one.
func (g *Registry) Reset(id string) (action.Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.runs[id]
	if !ok {
		return action.Run{}, ErrUnknownRun
	}
	if err := r.Reset(); err != nil {
		return action.Run{}, err
	}
	snap := r.Snapshot()
	delete(g.runs, id)
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.track(snap.ID, r)
	return snap, nil
}

// Wait blocks until every started run has returned.
func (g *Registry) Wait() { g.wg.Wait() }

// track must be called with mu held.
func (g *Registry) track(id string, r flows.Runner) {
	g.runs[id] = r
	g.order = append(g.order, id)
	if len(g.order) <= maxTracked {
		return
	}
	running := make(map[string]bool, len(g.active))
	for _, v := range g.active {
		running[v] = true
	}
	kept := g.order[:0]
	for _, v := range g.order {
		if len(g.runs) > maxTracked && !running[v] && !g.runs[v].Snapshot().IsLoading() {
			delete(g.runs, v)
			continue
		}
		kept = append(kept, v)
	}
	g.order = kept
}
