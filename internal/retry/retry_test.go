package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrier(config Config) (*Retrier, *[]time.Duration) {
	r := New(config, nil)
	sleeps := &[]time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return r, sleeps
}

func TestBackoff(t *testing.T) {
	config := Config{
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{name: "first retry", attempt: 1, expected: time.Second},
		{name: "second retry", attempt: 2, expected: 2 * time.Second},
		{name: "third retry", attempt: 3, expected: 4 * time.Second},
		{name: "fifth retry", attempt: 5, expected: 16 * time.Second},
		{name: "capped at max delay", attempt: 6, expected: 30 * time.Second},
		{name: "stays capped", attempt: 10, expected: 30 * time.Second},
		{name: "attempt below one is clamped", attempt: 0, expected: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Backoff(config, tt.attempt))
		})
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	r, sleeps := newTestRetrier(DefaultConfig())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	r, sleeps := newTestRetrier(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestDoExhaustsAttempts(t *testing.T) {
	r, sleeps := newTestRetrier(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("failure %d", calls)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *sleeps, 2)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "failure 3")
}

func TestSuccessThresholdResetsRetryBudget(t *testing.T) {
	r, _ := newTestRetrier(Config{
		MaxAttempts:      3,
		InitialDelay:     time.Millisecond,
		MaxDelay:         time.Second,
		BackoffFactor:    2.0,
		SuccessThreshold: 5,
	})

	// Burn two of the three attempts, then earn the budget back by
	// reporting five consecutive successes inside the operation.
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		switch {
		case calls <= 2:
			return errors.New("early failure")
		case calls == 3:
			for i := 0; i < 5; i++ {
				r.RecordSuccess()
			}
			return errors.New("failure after healthy stretch")
		case calls == 4:
			return errors.New("fresh burst")
		default:
			return nil
		}
	})

	// Without the reset the failure on call 3 would have exhausted the
	// budget; with it, the retrier survives a fresh burst of failures.
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, 2, r.RetryCount())
}

func TestFailureResetsConsecutiveSuccesses(t *testing.T) {
	r, _ := newTestRetrier(Config{
		MaxAttempts:      5,
		InitialDelay:     time.Millisecond,
		MaxDelay:         time.Second,
		BackoffFactor:    2.0,
		SuccessThreshold: 3,
	})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			// Two successes are not enough to reach the threshold.
			r.RecordSuccess()
			r.RecordSuccess()
			return errors.New("interrupts the streak")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, r.RetryCount())
}

func TestUnrecoverableStopsImmediately(t *testing.T) {
	r, sleeps := newTestRetrier(DefaultConfig())

	fatal := errors.New("bad credentials")
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return Unrecoverable(fatal)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
	assert.ErrorIs(t, err, fatal)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestUnrecoverableNil(t *testing.T) {
	assert.NoError(t, Unrecoverable(nil))
}

func TestDoHonorsContextCancellation(t *testing.T) {
	r := New(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(context.Context) error {
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNotifierInvokedBeforeEachRetry(t *testing.T) {
	type notification struct {
		attempt int
		delay   time.Duration
	}
	var notifications []notification

	r := New(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}, func(attempt int, delay time.Duration, _ error) {
		notifications = append(notifications, notification{attempt: attempt, delay: delay})
	})
	r.sleep = func(context.Context, time.Duration) error { return nil }

	_ = r.Do(context.Background(), func(context.Context) error {
		return errors.New("always fails")
	})

	assert.Equal(t, []notification{
		{attempt: 1, delay: time.Second},
		{attempt: 2, delay: 2 * time.Second},
	}, notifications)
}
