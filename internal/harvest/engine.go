package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alan/org-stats/internal/ratelimit"
	"github.com/alan/org-stats/internal/report"
	"github.com/alan/org-stats/internal/retry"
	"github.com/alan/org-stats/internal/state"
)

// RowSink accepts shaped output rows.
type RowSink interface {
	WriteRow(row report.Row) error
	Close() error
}

// Governor decides whether the walk may continue after each probe interval.
type Governor interface {
	Check(ctx context.Context) (ratelimit.Directive, error)
}

// Config carries the engine knobs resolved by the invocation layer.
type Config struct {
	Org                    string
	PageSize               int
	ExtraPageSize          int
	RateLimitCheckInterval int
	Resume                 bool
}

// Deps are the engine's collaborators, wired by the invocation layer. The
// engine owns neither the sink nor the state; it only drives them.
type Deps struct {
	Source   Source
	Store    *state.Store
	Governor Governor

	// OpenSink opens the row sink at the given path, creating it with a
	// header when absent.
	OpenSink func(path string) (RowSink, error)
	// NewFileName names a fresh output file for the organization.
	NewFileName func(org string, now time.Time) string
	// OnRowSuccess is invoked after every accepted row; the retry envelope
	// uses it to earn back retry budget.
	OnRowSuccess func()
}

// Engine walks the organization cursor, fans out per-repository issue and PR
// aggregation, emits rows and advances the durable progress state. One call
// to Run is one attempt; the retry envelope restarts it on failure and the
// engine resumes from the saved state.
type Engine struct {
	config Config
	source Source
	store  *state.Store
	gov    Governor

	openSink     func(path string) (RowSink, error)
	newFileName  func(org string, now time.Time) string
	onRowSuccess func()

	extraPageSize int
	attempted     bool
}

// NewEngine wires an engine from its configuration and collaborators.
func NewEngine(config Config, deps Deps) *Engine {
	e := &Engine{
		config:        config,
		source:        deps.Source,
		store:         deps.Store,
		gov:           deps.Governor,
		openSink:      deps.OpenSink,
		newFileName:   deps.NewFileName,
		onRowSuccess:  deps.OnRowSuccess,
		extraPageSize: config.ExtraPageSize,
	}
	if e.newFileName == nil {
		e.newFileName = report.FileName
	}
	return e
}

// Run performs one harvest attempt. A state file marked completed makes the
// run a no-op. Any failure reverts the current cursor to the last successful
// one before propagating, so the next attempt resumes at a known-good
// position.
func (e *Engine) Run(ctx context.Context) error {
	// The flag governs a fresh invocation only. Retry attempts within one
	// process always pick up the durable state, otherwise a transient failure
	// would re-emit every row already written this run.
	resume := e.config.Resume || e.attempted
	e.attempted = true

	st, resumed := e.store.Load(resume)
	if st.CompletedSuccessfully {
		slog.Info("previous harvest already completed, nothing to do", "org", e.config.Org)
		return nil
	}

	if !resumed || st.OutputFileName == "" {
		st.OutputFileName = e.newFileName(e.config.Org, time.Now())
	}
	e.store.Update(st, state.Mutation{})

	sink, err := e.openSink(st.OutputFileName)
	if err != nil {
		return fmt.Errorf("failed to open row sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("failed to close row sink", "error", err)
		}
	}()

	startCursor := st.CurrentCursor
	if startCursor == "" {
		startCursor = st.LastSuccessfulCursor
	}
	slog.Info("starting harvest",
		"org", e.config.Org,
		"output_file", st.OutputFileName,
		"resume", resumed,
		"start_cursor", startCursor)

	if err := e.walk(ctx, st, sink, startCursor); err != nil {
		// Resume at the last known-good position rather than re-attempting
		// the poisoned page from its midpoint.
		revert := st.LastSuccessfulCursor
		e.store.Update(st, state.Mutation{NewCursor: &revert})
		return err
	}

	empty := ""
	e.store.Update(st, state.Mutation{NewCursor: &empty})
	e.store.MarkCompleted(st)
	slog.Info("harvest completed",
		"org", e.config.Org,
		"processed_repos", len(st.ProcessedRepos),
		"output_file", st.OutputFileName)
	return nil
}

func (e *Engine) walk(ctx context.Context, st *state.State, sink RowSink, startCursor string) error {
	it := e.source.Repositories(e.config.Org, e.config.PageSize, e.config.ExtraPageSize, startCursor)

	rows := 0
	for {
		snap, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if snap.PageCursor != st.CurrentCursor {
			cursor := snap.PageCursor
			e.store.Update(st, state.Mutation{NewCursor: &cursor})
		}

		if st.Contains(snap.Name) {
			slog.Debug("skipping already processed repository", "repo", snap.Name)
			continue
		}

		issues, prs, err := e.aggregate(ctx, snap)
		if err != nil {
			return err
		}

		row, err := report.BuildRow(e.config.Org, snap, issues, prs)
		if err != nil {
			return err
		}
		if err := sink.WriteRow(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", snap.Name, err)
		}

		cursor := st.CurrentCursor
		name := snap.Name
		e.store.Update(st, state.Mutation{RepoName: &name, LastSuccessfulCursor: &cursor})

		rows++
		if e.onRowSuccess != nil {
			e.onRowSuccess()
		}
		slog.Debug("processed repository",
			"repo", snap.Name,
			"record_count", row.RecordCount,
			"rows_this_attempt", rows)

		if e.config.RateLimitCheckInterval > 0 && rows%e.config.RateLimitCheckInterval == 0 {
			if err := e.checkRateLimit(ctx); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) checkRateLimit(ctx context.Context) error {
	directive, err := e.gov.Check(ctx)
	switch directive {
	case ratelimit.DirectivePause:
		return ratelimit.ErrPaused
	case ratelimit.DirectiveAbort:
		return retry.Unrecoverable(fmt.Errorf("rate limit probe is failing persistently: %w", err))
	default:
		return nil
	}
}
