// Package harvest drives the organization walk: it pulls repository
// snapshots in cursor order, folds their issue and pull request connections
// into aggregate totals, emits one row per repository and advances the
// durable progress state.
package harvest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alan/org-stats/internal/github"
	"github.com/alan/org-stats/internal/report"
)

// commitCountCap bounds the commit contribution to a PR's redundant event
// count; the timeline never carries more than 250 commit events per PR.
const commitCountCap = 250

// RepoIterator yields repository snapshots in cursor order.
type RepoIterator interface {
	Next(ctx context.Context) (*github.RepoSnapshot, bool, error)
}

// IssueIterator continues an issue connection past its embedded first page.
type IssueIterator interface {
	Next(ctx context.Context) (github.IssueNode, bool, error)
}

// PullRequestIterator continues a pull request connection past its embedded
// first page.
type PullRequestIterator interface {
	Next(ctx context.Context) (github.PullRequestNode, bool, error)
}

// Source is the remote surface the engine walks.
type Source interface {
	Repositories(org string, pageSize, extraPageSize int, after string) RepoIterator
	Issues(owner, repo string, pageSize int, after string) IssueIterator
	PullRequests(owner, repo string, pageSize int, after string) PullRequestIterator
}

// aggregate folds both connections of a snapshot concurrently. The engine
// does not write a row until both totals are complete.
func (e *Engine) aggregate(ctx context.Context, snap *github.RepoSnapshot) (report.IssueTotals, report.PullRequestTotals, error) {
	var issues report.IssueTotals
	var prs report.PullRequestTotals

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		issues, err = e.aggregateIssues(groupCtx, snap)
		return err
	})
	group.Go(func() error {
		var err error
		prs, err = e.aggregatePullRequests(groupCtx, snap)
		return err
	})
	if err := group.Wait(); err != nil {
		return report.IssueTotals{}, report.PullRequestTotals{}, err
	}
	return issues, prs, nil
}

// aggregateIssues folds the embedded first page of the snapshot's issue
// connection and continues with paginated fetches from the embedded cursor.
// The first page's nodes are never re-fetched.
func (e *Engine) aggregateIssues(ctx context.Context, snap *github.RepoSnapshot) (report.IssueTotals, error) {
	if snap.Issues.TotalCount <= 0 {
		return report.IssueTotals{}, nil
	}

	totals := report.IssueTotals{Count: snap.Issues.TotalCount}

	var comments, timeline int
	for _, node := range snap.Issues.Nodes {
		comments += node.CommentCount
		timeline += node.TimelineCount
	}
	totals.Comments = comments
	totals.Events = timeline - comments

	page := snap.Issues.PageInfo
	if !page.HasNextPage || page.EndCursor == "" {
		return totals, nil
	}

	it := e.source.Issues(snap.OwnerLogin, snap.Name, e.extraPageSize, page.EndCursor)
	for {
		node, ok, err := it.Next(ctx)
		if err != nil {
			slog.Error("issue pagination failed, consider reducing page size",
				"repo", snap.Name, "error", err)
			return report.IssueTotals{}, fmt.Errorf("failed to paginate issues for %s: %w", snap.Name, err)
		}
		if !ok {
			break
		}
		totals.Events += node.TimelineCount - node.CommentCount
		totals.Comments += node.CommentCount
	}
	return totals, nil
}

// aggregatePullRequests folds every PR node of the snapshot, first-page and
// paginated alike, into the PR-derived totals.
func (e *Engine) aggregatePullRequests(ctx context.Context, snap *github.RepoSnapshot) (report.PullRequestTotals, error) {
	if snap.PullRequests.TotalCount <= 0 {
		return report.PullRequestTotals{}, nil
	}

	totals := report.PullRequestTotals{Count: snap.PullRequests.TotalCount}
	for _, node := range snap.PullRequests.Nodes {
		foldPullRequest(&totals, snap.Name, node)
	}

	page := snap.PullRequests.PageInfo
	if !page.HasNextPage || page.EndCursor == "" {
		return totals, nil
	}

	it := e.source.PullRequests(snap.OwnerLogin, snap.Name, e.extraPageSize, page.EndCursor)
	for {
		node, ok, err := it.Next(ctx)
		if err != nil {
			slog.Error("pull request pagination failed, consider reducing page size",
				"repo", snap.Name, "error", err)
			return report.PullRequestTotals{}, fmt.Errorf("failed to paginate pull requests for %s: %w", snap.Name, err)
		}
		if !ok {
			break
		}
		foldPullRequest(&totals, snap.Name, node)
	}
	return totals, nil
}

// foldPullRequest accumulates one PR node. A PR's comment and commit events
// already appear on its timeline, so they are subtracted back out of the
// event total; when the redundant count exceeds the timeline the negative
// delta is applied verbatim.
func foldPullRequest(totals *report.PullRequestTotals, repoName string, node github.PullRequestNode) {
	redundant := node.CommentCount + min(node.CommitCount, commitCountCap)
	if redundant > node.TimelineCount {
		slog.Warn("pull request has more redundant events than timeline events",
			"repo", repoName,
			"pr", node.Number,
			"timeline", node.TimelineCount,
			"comments", node.CommentCount,
			"commits", node.CommitCount)
	}

	totals.Events += node.TimelineCount - redundant
	totals.Comments += node.CommentCount
	totals.ReviewCount += node.ReviewCount
	totals.CommitComments += node.CommitCount
	for _, review := range node.ReviewNodes {
		totals.ReviewComments += review.CommentCount
	}
}
