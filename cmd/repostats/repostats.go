// Package repostats implements the repo-stats subcommand: the resumable
// organization harvest.
package repostats

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alan/org-stats/cmd"
	"github.com/alan/org-stats/internal/github"
	"github.com/alan/org-stats/internal/harvest"
	"github.com/alan/org-stats/internal/ratelimit"
	"github.com/alan/org-stats/internal/report"
	"github.com/alan/org-stats/internal/retry"
	"github.com/alan/org-stats/internal/state"
)

// NewRepoStatsCmd creates the repo-stats command.
func NewRepoStatsCmd(optionsFile *string, logFormat *string, setupLogger func(verbose bool, format, orgName string)) *cobra.Command {
	opts := &cmd.Options{}

	cobraCmd := &cobra.Command{
		Use:   "repo-stats",
		Short: "Harvest per-repository statistics for an organization",
		Long: `Repo-stats walks every repository of the organization in ascending name
order and appends one CSV row per repository. Progress is saved to
last_known_state.json after each row; pass --resume-from-last-save to pick up
an interrupted run where it stopped.`,
		SilenceUsage: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			file, err := cmd.LoadOptionsFile(*optionsFile)
			if err != nil {
				return err
			}
			if err := opts.Resolve(cobraCmd.Flags(), file); err != nil {
				return err
			}
			setupLogger(opts.Verbose, *logFormat, opts.OrgName)
			if err := opts.ValidateHarvest(); err != nil {
				return err
			}
			return run(cobraCmd.Context(), opts)
		},
	}

	cmd.RegisterCommonFlags(cobraCmd.Flags(), opts)
	cmd.RegisterHarvestFlags(cobraCmd.Flags(), opts)

	return cobraCmd
}

func run(ctx context.Context, opts *cmd.Options) error {
	client, err := BuildClient(ctx, opts)
	if err != nil {
		slog.Error("failed to build GitHub client", "error", err)
		return err
	}

	retrier := retry.New(retry.Config{
		MaxAttempts:      opts.RetryMaxAttempts,
		InitialDelay:     opts.RetryInitialDelay(),
		MaxDelay:         opts.RetryMaxDelay(),
		BackoffFactor:    opts.RetryBackoffFactor,
		SuccessThreshold: opts.RetrySuccessThreshold,
	}, nil)

	engine := harvest.NewEngine(harvest.Config{
		Org:                    opts.OrgName,
		PageSize:               opts.PageSize,
		ExtraPageSize:          opts.ExtraPageSize,
		RateLimitCheckInterval: opts.RateLimitCheckInterval,
		Resume:                 opts.ResumeFromLastSave,
	}, harvest.Deps{
		Source:   &clientSource{client: client},
		Store:    state.NewStore(""),
		Governor: ratelimit.NewGovernor(client, 0),
		OpenSink: func(path string) (harvest.RowSink, error) {
			return report.OpenWriter(path)
		},
		NewFileName:  report.FileName,
		OnRowSuccess: retrier.RecordSuccess,
	})

	if err := retrier.Do(ctx, engine.Run); err != nil {
		slog.Error("harvest failed", "org", opts.OrgName, "error", err)
		return err
	}
	return nil
}

// BuildClient assembles the remote client facade from the resolved options.
// Shared with the missing-repos subcommand.
func BuildClient(ctx context.Context, opts *cmd.Options) (*github.Client, error) {
	clientOpts := github.Options{
		Token:          opts.AccessToken,
		AppID:          opts.AppID,
		InstallationID: opts.AppInstallationID,
		BaseURL:        opts.BaseURL,
		ProxyURL:       opts.ProxyURL,
	}

	if opts.UsesAppAuth() {
		pem := []byte(opts.PrivateKey)
		if opts.PrivateKeyFile != "" {
			data, err := os.ReadFile(opts.PrivateKeyFile) //nolint:gosec // Path comes from a command-line flag
			if err != nil {
				return nil, fmt.Errorf("failed to read private key file: %w", err)
			}
			pem = data
		}
		clientOpts.PrivateKeyPEM = pem
	}

	return github.NewClient(ctx, clientOpts)
}

// clientSource adapts the remote client facade to the engine's Source
// interface.
type clientSource struct {
	client *github.Client
}

func (s *clientSource) Repositories(org string, pageSize, extraPageSize int, after string) harvest.RepoIterator {
	return s.client.IterateOrgRepositories(org, pageSize, extraPageSize, after)
}

func (s *clientSource) Issues(owner, repo string, pageSize int, after string) harvest.IssueIterator {
	return s.client.IterateRepoIssues(owner, repo, pageSize, after)
}

func (s *clientSource) PullRequests(owner, repo string, pageSize int, after string) harvest.PullRequestIterator {
	return s.client.IterateRepoPullRequests(owner, repo, pageSize, after)
}
