// Package audit diffs an organization's live repository list against a
// previously emitted output file.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	gh "github.com/google/go-github/v57/github"

	"github.com/alan/org-stats/internal/report"
)

// RepositoryLister is the slice of the GitHub REST API the audit needs; the
// lightweight listing avoids the cost of the full stats query.
type RepositoryLister interface {
	ListByOrg(ctx context.Context, org string, opts *gh.RepositoryListByOrgOptions) ([]*gh.Repository, *gh.Response, error)
}

// FindMissing returns the live repository names that have no row in the
// output file, in ascending order.
func FindMissing(ctx context.Context, lister RepositoryLister, org, outputFile string, pageSize int) ([]string, error) {
	emitted, err := report.ReadRepoNames(outputFile)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded emitted repository names", "output_file", outputFile, "count", len(emitted))

	live, err := listRepoNames(ctx, lister, org, pageSize)
	if err != nil {
		return nil, err
	}
	slog.Info("listed live repositories", "org", org, "count", len(live))

	var missing []string
	for _, name := range live {
		if _, ok := emitted[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

func listRepoNames(ctx context.Context, lister RepositoryLister, org string, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	opts := &gh.RepositoryListByOrgOptions{
		ListOptions: gh.ListOptions{PerPage: pageSize},
	}

	var names []string
	for {
		repos, resp, err := lister.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for %s (page %d): %w", org, opts.Page, err)
		}
		for _, repo := range repos {
			names = append(names, repo.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}
