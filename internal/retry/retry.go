// Package retry wraps fallible operations in exponential backoff with a
// success-threshold reset: a long healthy stretch earns back the full retry
// budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Config controls the retry envelope.
type Config struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	BackoffFactor    float64
	SuccessThreshold int
}

// DefaultConfig returns the standard harvest retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialDelay:     time.Second,
		MaxDelay:         30 * time.Second,
		BackoffFactor:    2.0,
		SuccessThreshold: 5,
	}
}

// Notifier is invoked before each retry sleep.
type Notifier func(attempt int, delay time.Duration, err error)

// Retrier runs an operation with bounded retries. The operation may report
// fine-grained progress through RecordSuccess; reaching the success threshold
// resets both the consecutive-success counter and the lifetime retry counter.
type Retrier struct {
	config   Config
	onRetry  Notifier
	sleep    func(ctx context.Context, d time.Duration) error

	retryCount           int
	consecutiveSuccesses int
	lastErr              error
}

// New creates a Retrier. A nil notifier is allowed.
func New(config Config, onRetry Notifier) *Retrier {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Retrier{
		config:  config,
		onRetry: onRetry,
		sleep:   sleepContext,
	}
}

// RecordSuccess registers one successful unit of work inside the wrapped
// operation. At SuccessThreshold consecutive successes the retry budget is
// restored.
func (r *Retrier) RecordSuccess() {
	r.consecutiveSuccesses++
	if r.config.SuccessThreshold > 0 && r.consecutiveSuccesses >= r.config.SuccessThreshold {
		if r.retryCount > 0 {
			slog.Debug("resetting retry budget after sustained success",
				"consecutive_successes", r.consecutiveSuccesses,
				"retries_cleared", r.retryCount)
		}
		r.consecutiveSuccesses = 0
		r.retryCount = 0
	}
}

// RetryCount returns the lifetime retry counter.
func (r *Retrier) RetryCount() int { return r.retryCount }

// Do runs op until it succeeds, returns an unrecoverable error, or the retry
// budget is exhausted. Exhaustion yields an aggregate error naming the attempt
// count and the last observed error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		r.consecutiveSuccesses = 0
		r.lastErr = err

		var unrecoverable *unrecoverableError
		if errors.As(err, &unrecoverable) {
			return unrecoverable.err
		}

		r.retryCount++
		if r.retryCount >= r.config.MaxAttempts {
			return &ExhaustedError{Attempts: r.retryCount, Err: err}
		}

		delay := Backoff(r.config, r.retryCount)
		if r.onRetry != nil {
			r.onRetry(r.retryCount, delay, err)
		}
		slog.Warn("operation failed, backing off before retry",
			"attempt", r.retryCount,
			"max_attempts", r.config.MaxAttempts,
			"delay", delay,
			"error", err)

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Backoff returns the sleep preceding retry attempt i (1-based):
// min(initial * factor^(i-1), max).
func Backoff(config Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt-1))
	if max := float64(config.MaxDelay); delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Unrecoverable marks an error as terminal so Do returns it immediately
// instead of retrying.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &unrecoverableError{err: err}
}

type unrecoverableError struct {
	err error
}

func (e *unrecoverableError) Error() string { return e.err.Error() }

func (e *unrecoverableError) Unwrap() error { return e.err }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
