package github

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"
)

// The iterators are finite and non-restartable: each Next call may fetch at
// most one remote page, and a drained iterator keeps reporting done.

// RepoIterator walks an organization's repositories one GraphQL page at a
// time, in ascending repository-name order.
type RepoIterator struct {
	client        *Client
	org           string
	pageSize      int
	extraPageSize int

	cursor *githubv4.String
	buf    []*RepoSnapshot
	done   bool
}

// IterateOrgRepositories opens a repository iterator. An empty after cursor
// starts from the first page.
func (c *Client) IterateOrgRepositories(org string, pageSize, extraPageSize int, after string) *RepoIterator {
	it := &RepoIterator{
		client:        c,
		org:           org,
		pageSize:      pageSize,
		extraPageSize: extraPageSize,
	}
	if after != "" {
		cursor := githubv4.String(after)
		it.cursor = &cursor
	}
	return it
}

// Next yields the next repository snapshot. The second return value is false
// once the organization is drained.
func (it *RepoIterator) Next(ctx context.Context) (*RepoSnapshot, bool, error) {
	for len(it.buf) == 0 {
		if it.done {
			return nil, false, nil
		}
		if err := it.fetch(ctx); err != nil {
			return nil, false, err
		}
	}
	snap := it.buf[0]
	it.buf = it.buf[1:]
	return snap, true, nil
}

func (it *RepoIterator) fetch(ctx context.Context) error {
	after := ""
	if it.cursor != nil {
		after = string(*it.cursor)
	}

	var q orgRepositoriesQuery
	variables := map[string]interface{}{
		"org":           githubv4.String(it.org),
		"pageSize":      githubv4.Int(it.pageSize),
		"extraPageSize": githubv4.Int(it.extraPageSize),
		"cursor":        it.cursor,
	}
	if err := it.client.graphql.Query(ctx, &q, variables); err != nil {
		return fmt.Errorf("failed to fetch repositories page for %s: %w", it.org, err)
	}

	page := q.Organization.Repositories.PageInfo
	for _, node := range q.Organization.Repositories.Nodes {
		it.buf = append(it.buf, mapSnapshot(node, page, after))
	}

	if page.HasNextPage {
		cursor := githubv4.String(page.EndCursor)
		it.cursor = &cursor
	} else {
		it.done = true
	}
	return nil
}

// IssueIterator continues a repository's issue connection past its embedded
// first page.
type IssueIterator struct {
	client   *Client
	owner    string
	repo     string
	pageSize int

	cursor *githubv4.String
	buf    []IssueNode
	done   bool
}

// IterateRepoIssues opens an issue iterator starting after the given cursor,
// which is the end cursor of the parent snapshot's embedded first page.
func (c *Client) IterateRepoIssues(owner, repo string, pageSize int, after string) *IssueIterator {
	it := &IssueIterator{
		client:   c,
		owner:    owner,
		repo:     repo,
		pageSize: pageSize,
	}
	if after != "" {
		cursor := githubv4.String(after)
		it.cursor = &cursor
	}
	return it
}

// Next yields the next issue node, or done=false when the connection is
// drained.
func (it *IssueIterator) Next(ctx context.Context) (IssueNode, bool, error) {
	for len(it.buf) == 0 {
		if it.done {
			return IssueNode{}, false, nil
		}
		if err := it.fetch(ctx); err != nil {
			return IssueNode{}, false, err
		}
	}
	node := it.buf[0]
	it.buf = it.buf[1:]
	return node, true, nil
}

func (it *IssueIterator) fetch(ctx context.Context) error {
	var q repoIssuesQuery
	variables := map[string]interface{}{
		"owner":    githubv4.String(it.owner),
		"name":     githubv4.String(it.repo),
		"pageSize": githubv4.Int(it.pageSize),
		"cursor":   it.cursor,
	}
	if err := it.client.graphql.Query(ctx, &q, variables); err != nil {
		return fmt.Errorf("failed to fetch issues page for %s/%s: %w", it.owner, it.repo, err)
	}

	for _, node := range q.Repository.Issues.Nodes {
		it.buf = append(it.buf, mapIssueNode(node))
	}

	page := q.Repository.Issues.PageInfo
	if page.HasNextPage && page.EndCursor != "" {
		cursor := githubv4.String(page.EndCursor)
		it.cursor = &cursor
	} else {
		it.done = true
	}
	return nil
}

// PullRequestIterator continues a repository's pull request connection past
// its embedded first page.
type PullRequestIterator struct {
	client   *Client
	owner    string
	repo     string
	pageSize int

	cursor *githubv4.String
	buf    []PullRequestNode
	done   bool
}

// IterateRepoPullRequests opens a pull request iterator starting after the
// given cursor.
func (c *Client) IterateRepoPullRequests(owner, repo string, pageSize int, after string) *PullRequestIterator {
	it := &PullRequestIterator{
		client:   c,
		owner:    owner,
		repo:     repo,
		pageSize: pageSize,
	}
	if after != "" {
		cursor := githubv4.String(after)
		it.cursor = &cursor
	}
	return it
}

// Next yields the next pull request node, or done=false when the connection
// is drained.
func (it *PullRequestIterator) Next(ctx context.Context) (PullRequestNode, bool, error) {
	for len(it.buf) == 0 {
		if it.done {
			return PullRequestNode{}, false, nil
		}
		if err := it.fetch(ctx); err != nil {
			return PullRequestNode{}, false, err
		}
	}
	node := it.buf[0]
	it.buf = it.buf[1:]
	return node, true, nil
}

func (it *PullRequestIterator) fetch(ctx context.Context) error {
	var q repoPullRequestsQuery
	variables := map[string]interface{}{
		"owner":    githubv4.String(it.owner),
		"name":     githubv4.String(it.repo),
		"pageSize": githubv4.Int(it.pageSize),
		// Nested reviews ride the same page size as the PR page itself.
		"extraPageSize": githubv4.Int(it.pageSize),
		"cursor":        it.cursor,
	}
	if err := it.client.graphql.Query(ctx, &q, variables); err != nil {
		return fmt.Errorf("failed to fetch pull requests page for %s/%s: %w", it.owner, it.repo, err)
	}

	for _, node := range q.Repository.PullRequests.Nodes {
		it.buf = append(it.buf, mapPullRequestNode(node))
	}

	page := q.Repository.PullRequests.PageInfo
	if page.HasNextPage && page.EndCursor != "" {
		cursor := githubv4.String(page.EndCursor)
		it.cursor = &cursor
	} else {
		it.done = true
	}
	return nil
}
