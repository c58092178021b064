package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

// recordSleeps replaces the real sleep and records requested delays
func recordSleeps(p *Policy) *[]time.Duration {
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: Schedule(10 * time.Millisecond)}
	slept := recordSleeps(&p)

	calls := 0
	got, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: Schedule(10*time.Millisecond, 20*time.Millisecond, 40*time.Millisecond)}
	slept := recordSleeps(&p)

	calls := 0
	got, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *slept)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: Quadratic(time.Millisecond)}
	slept := recordSleeps(&p)

	var retried []int
	p.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	calls := 0
	err := DoErr(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, []time.Duration{time.Millisecond, 4 * time.Millisecond}, *slept)
}

func TestDo_NonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	p := Policy{
		Attempts:  5,
		Retryable: func(err error) bool { return errors.Is(err, errTransient) },
	}

	calls := 0
	err := DoErr(context.Background(), p, func(ctx context.Context) error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, Backoff: Schedule(time.Hour)}

	calls := 0
	err := DoErr(ctx, p, func(ctx context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = DoErr(context.Background(), Policy{}, func(ctx context.Context) error {
		calls++
		return errTransient
	})
	assert.Equal(t, 1, calls)
}

func TestSchedule(t *testing.T) {
	b := Schedule(10*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, b(1))
	assert.Equal(t, 20*time.Millisecond, b(2))
	assert.Equal(t, 20*time.Millisecond, b(7))
	assert.Equal(t, time.Duration(0), Schedule()(1))
}

func TestExponential(t *testing.T) {
	b := Exponential(100*time.Millisecond, time.Second, 2)
	assert.Equal(t, 100*time.Millisecond, b(1))
	assert.Equal(t, 200*time.Millisecond, b(2))
	assert.Equal(t, 400*time.Millisecond, b(3))
	assert.Equal(t, 800*time.Millisecond, b(4))
	assert.Equal(t, time.Second, b(5))
}

func TestQuadratic(t *testing.T) {
	b := Quadratic(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, b(1))
	assert.Equal(t, 40*time.Millisecond, b(2))
	assert.Equal(t, 90*time.Millisecond, b(3))
}
