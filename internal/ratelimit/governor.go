// Package ratelimit decides whether the harvest may continue based on the
// remaining GitHub API quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// UnlimitedSentinel is reported for hosts that have rate limiting disabled.
const UnlimitedSentinel int64 = 10_000_000_000

// Severity classifies a probe result.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Status is the result of one rate-limit probe.
type Status struct {
	GraphQLRemaining int64
	RESTRemaining    int64
	Message          string
	Severity         Severity
}

// Directive tells the engine how to proceed.
type Directive int

const (
	// DirectiveContinue means quota remains on both surfaces.
	DirectiveContinue Directive = iota
	// DirectivePause means quota is exhausted; the caller should back off
	// and try again later.
	DirectivePause
	// DirectiveAbort means probing keeps failing and the run should stop.
	DirectiveAbort
)

// ErrPaused is returned by the engine when the governor requests a pause, so
// the retry envelope sleeps it off.
var ErrPaused = errors.New("rate limit exhausted, pausing harvest")

// Prober performs a single rate-limit probe.
type Prober interface {
	ProbeRateLimits(ctx context.Context) (Status, error)
}

// DefaultMaxPauses bounds consecutive failing probes before the governor
// gives up.
const DefaultMaxPauses = 5

// Governor periodically checks remaining quota and converts it into a
// directive for the harvest engine.
type Governor struct {
	prober     Prober
	maxPauses  int
	pauseCount int
}

// NewGovernor creates a Governor. maxPauses <= 0 selects DefaultMaxPauses.
func NewGovernor(prober Prober, maxPauses int) *Governor {
	if maxPauses <= 0 {
		maxPauses = DefaultMaxPauses
	}
	return &Governor{prober: prober, maxPauses: maxPauses}
}

// Check probes the remote quota and returns the directive for the engine.
func (g *Governor) Check(ctx context.Context) (Directive, error) {
	status, err := g.prober.ProbeRateLimits(ctx)
	if err != nil || status.Severity == SeverityError {
		g.pauseCount++
		if g.pauseCount > g.maxPauses {
			if err == nil {
				err = fmt.Errorf("rate limit probe reported error: %s", status.Message)
			}
			slog.Error("rate limit probe failed too many times, aborting",
				"pause_count", g.pauseCount, "error", err)
			return DirectiveAbort, err
		}
		slog.Warn("rate limit probe failed, pausing",
			"pause_count", g.pauseCount, "max_pauses", g.maxPauses, "error", err)
		return DirectivePause, nil
	}

	// Quota exhaustion is an expected, self-healing condition; only failing
	// probes count toward the abort cap.
	if status.GraphQLRemaining == 0 || status.RESTRemaining == 0 {
		slog.Warn("rate limit exhausted",
			"graphql_remaining", status.GraphQLRemaining,
			"rest_remaining", status.RESTRemaining,
			"message", status.Message)
		return DirectivePause, nil
	}

	g.pauseCount = 0
	slog.Debug("rate limit check passed",
		"graphql_remaining", status.GraphQLRemaining,
		"rest_remaining", status.RESTRemaining)
	return DirectiveContinue, nil
}
