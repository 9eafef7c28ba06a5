package ratelimit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	statuses []Status
	errs     []error
	calls    int
}

func (f *fakeProber) ProbeRateLimits(context.Context) (Status, error) {
	i := f.calls
	f.calls++
	var status Status
	if i < len(f.statuses) {
		status = f.statuses[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return status, err
}

func healthy() Status {
	return Status{GraphQLRemaining: 4000, RESTRemaining: 5000, Severity: SeverityInfo}
}

func exhausted() Status {
	return Status{GraphQLRemaining: 0, RESTRemaining: 5000, Severity: SeverityWarning}
}

func TestGovernorContinuesWithQuota(t *testing.T) {
	gov := NewGovernor(&fakeProber{statuses: []Status{healthy()}}, 3)

	directive, err := gov.Check(context.Background())

	require.NoError(t, err)
	assert.Equal(t, DirectiveContinue, directive)
}

func TestGovernorPausesOnExhaustion(t *testing.T) {
	tests := []struct {
		name   string
		status Status
	}{
		{name: "graphql exhausted", status: Status{GraphQLRemaining: 0, RESTRemaining: 100}},
		{name: "rest exhausted", status: Status{GraphQLRemaining: 100, RESTRemaining: 0}},
		{name: "both exhausted", status: Status{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gov := NewGovernor(&fakeProber{statuses: []Status{tt.status}}, 3)

			directive, err := gov.Check(context.Background())

			require.NoError(t, err)
			assert.Equal(t, DirectivePause, directive)
		})
	}
}

func TestGovernorSentinelMeansUnlimited(t *testing.T) {
	gov := NewGovernor(&fakeProber{statuses: []Status{{
		GraphQLRemaining: UnlimitedSentinel,
		RESTRemaining:    UnlimitedSentinel,
		Severity:         SeverityInfo,
	}}}, 3)

	directive, err := gov.Check(context.Background())

	require.NoError(t, err)
	assert.Equal(t, DirectiveContinue, directive)
}

func TestGovernorAbortsAfterRepeatedProbeFailures(t *testing.T) {
	probeErr := errors.New("boom")
	prober := &fakeProber{
		errs: []error{probeErr, probeErr, probeErr},
		statuses: []Status{
			{Severity: SeverityError},
			{Severity: SeverityError},
			{Severity: SeverityError},
		},
	}
	gov := NewGovernor(prober, 2)

	directive, err := gov.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DirectivePause, directive)

	directive, err = gov.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DirectivePause, directive)

	directive, err = gov.Check(context.Background())
	assert.Equal(t, DirectiveAbort, directive)
	assert.ErrorIs(t, err, probeErr)
}

func TestGovernorExhaustionPausesDoNotCountTowardAbort(t *testing.T) {
	probeErr := errors.New("boom")
	prober := &fakeProber{
		statuses: []Status{exhausted(), exhausted(), {Severity: SeverityError}, {Severity: SeverityError}},
		errs:     []error{nil, nil, probeErr, probeErr},
	}
	gov := NewGovernor(prober, 1)

	// A healthy-but-exhausted stretch pauses without burning the abort cap.
	for i := 0; i < 2; i++ {
		directive, err := gov.Check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, DirectivePause, directive)
	}

	directive, err := gov.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DirectivePause, directive)

	directive, err = gov.Check(context.Background())
	assert.Equal(t, DirectiveAbort, directive)
	assert.ErrorIs(t, err, probeErr)
}

func TestGovernorResetsPauseCountOnSuccess(t *testing.T) {
	probeErr := errors.New("boom")
	prober := &fakeProber{
		statuses: []Status{{Severity: SeverityError}, healthy(), {Severity: SeverityError}, {Severity: SeverityError}},
		errs:     []error{probeErr, nil, probeErr, probeErr},
	}
	gov := NewGovernor(prober, 2)

	directive, _ := gov.Check(context.Background())
	assert.Equal(t, DirectivePause, directive)

	directive, err := gov.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DirectiveContinue, directive)

	// The healthy probe cleared the pause counter, so two more failures are
	// tolerated before an abort.
	directive, _ = gov.Check(context.Background())
	assert.Equal(t, DirectivePause, directive)
	directive, _ = gov.Check(context.Background())
	assert.Equal(t, DirectivePause, directive)
}
