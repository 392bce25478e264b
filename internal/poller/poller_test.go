package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classifyString(s string) Status {
	switch s {
	case "done":
		return Success
	case "failed":
		return Failure
	default:
		return Pending
	}
}

func sequence(states ...string) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		i := calls
		calls++
		if i >= len(states) {
			return states[len(states)-1], nil
		}
		if states[i] == "error" {
			return "", errors.New("connection reset")
		}
		return states[i], nil
	}, &calls
}

func fastOptions(max int) Options {
	return Options{MaxAttempts: max, Interval: time.Millisecond}
}

func TestPollUntilTerminal_Success(t *testing.T) {
	fetch, calls := sequence("pending", "minting", "done")
	ok, err := PollUntilTerminal(context.Background(), fetch, classifyString, fastOptions(10))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, *calls)
}

func TestPollUntilTerminal_Failure(t *testing.T) {
	fetch, calls := sequence("pending", "failed", "done")
	ok, err := PollUntilTerminal(context.Background(), fetch, classifyString, fastOptions(10))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, *calls)
}

func TestPollUntilTerminal_FetchErrorsAreRetried(t *testing.T) {
	fetch, calls := sequence("error", "error", "done")
	ok, err := PollUntilTerminal(context.Background(), fetch, classifyString, fastOptions(10))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, *calls)
}

func TestPollUntilTerminal_Timeout(t *testing.T) {
	fetch, calls := sequence("pending")
	ok, err := PollUntilTerminal(context.Background(), fetch, classifyString, fastOptions(4))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, ok)
	assert.Equal(t, 4, *calls)
}

func TestPollUntilTerminal_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(context.Context) (string, error) {
		cancel()
		return "pending", nil
	}
	ok, err := PollUntilTerminal(ctx, fetch, classifyString, Options{MaxAttempts: 5, Interval: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestPoller_OnStatus(t *testing.T) {
	fetch, _ := sequence("pending", "minting", "done")
	var seen []string
	p := Poller[string]{
		Fetch:    fetch,
		Classify: classifyString,
		OnStatus: func(s string) { seen = append(seen, s) },
		Options:  fastOptions(10),
	}
	ok, err := p.PollUntilTerminal(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"pending", "minting", "done"}, seen)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultMaxAttempts, o.MaxAttempts)
	assert.Equal(t, DefaultInterval, o.Interval)
}
