package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxAttempts = 30
	DefaultInterval    = 2 * time.Second
)

// ErrTimeout is returned when the attempt budget runs out before a terminal status.
var ErrTimeout = errors.New("polling exhausted attempts without a terminal status")

// Status is the classification of one observed backend state.
type Status int

const (
	Pending Status = iota
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "pending"
	}
}

// Options tunes a polling loop. Zero values fall back to the defaults.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Logger      zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Poller repeatedly queries a status endpoint until it reports a terminal state.
type Poller[S any] struct {
	Fetch    func(ctx context.Context) (S, error)
	Classify func(S) Status
	// OnStatus, when set, observes every successfully fetched status.
	OnStatus func(S)
	Options  Options
}

// PollUntilTerminal runs the loop. It returns (true, nil) on Success and (false, nil)
// on Failure. Fetch errors count as Pending. When the attempts are exhausted it
// returns (false, ErrTimeout); a cancelled context returns (false, ctx.Err()).
func (p Poller[S]) PollUntilTerminal(ctx context.Context) (bool, error) {
	opts := p.Options.withDefaults()
	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, err
		}

		status, err := p.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			opts.Logger.Warn().Err(err).Int("attempt", attempt).Msg("status fetch failed, retrying")
			continue
		}
		if p.OnStatus != nil {
			p.OnStatus(status)
		}

		switch p.Classify(status) {
		case Success:
			return true, nil
		case Failure:
			return false, nil
		}
		opts.Logger.Debug().Int("attempt", attempt).Interface("status", status).Msg("status still pending")
	}
	return false, ErrTimeout
}

// PollUntilTerminal is the function form of Poller.PollUntilTerminal.
func PollUntilTerminal[S any](ctx context.Context, fetch func(context.Context) (S, error), classify func(S) Status, opts Options) (bool, error) {
	return Poller[S]{Fetch: fetch, Classify: classify, Options: opts}.PollUntilTerminal(ctx)
}
