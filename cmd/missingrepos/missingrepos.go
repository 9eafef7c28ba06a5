// Package missingrepos implements the missing-repos subcommand: an audit of
// which live repositories have no row in a previously emitted output file.
package missingrepos

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alan/org-stats/cmd"
	"github.com/alan/org-stats/cmd/repostats"
	"github.com/alan/org-stats/internal/audit"
)

// NewMissingReposCmd creates the missing-repos command.
func NewMissingReposCmd(optionsFile *string, logFormat *string, setupLogger func(verbose bool, format, orgName string)) *cobra.Command {
	opts := &cmd.Options{}

	cobraCmd := &cobra.Command{
		Use:   "missing-repos",
		Short: "List organization repositories absent from an output file",
		Long: `Missing-repos compares the organization's live repository list against
the Repo_Name column of an existing output file and prints every repository
that has no row yet. It never reads or writes the harvest progress state.`,
		SilenceUsage: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			file, err := cmd.LoadOptionsFile(*optionsFile)
			if err != nil {
				return err
			}
			if err := opts.Resolve(cobraCmd.Flags(), file); err != nil {
				return err
			}
			setupLogger(opts.Verbose, *logFormat, "")
			if err := opts.ValidateAudit(); err != nil {
				return err
			}
			return run(cobraCmd.Context(), opts)
		},
	}

	cmd.RegisterCommonFlags(cobraCmd.Flags(), opts)
	cobraCmd.Flags().StringVar(&opts.OutputFileName, "output-file-name", "", "Existing output file to audit (env OUTPUT_FILE_NAME)")

	return cobraCmd
}

func run(ctx context.Context, opts *cmd.Options) error {
	client, err := repostats.BuildClient(ctx, opts)
	if err != nil {
		slog.Error("failed to build GitHub client", "error", err)
		return err
	}

	missing, err := audit.FindMissing(ctx, client.REST().Repositories, opts.OrgName, opts.OutputFileName, opts.PageSize)
	if err != nil {
		slog.Error("missing-repo audit failed", "org", opts.OrgName, "error", err)
		return err
	}

	if len(missing) == 0 {
		fmt.Printf("All repositories of %s are present in %s\n", opts.OrgName, opts.OutputFileName)
		return nil
	}

	fmt.Printf("%d repositories of %s are missing from %s:\n", len(missing), opts.OrgName, opts.OutputFileName)
	for _, name := range missing {
		fmt.Println(name)
	}
	return nil
}
