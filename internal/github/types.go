package github

import "time"

// PageInfo carries the cursor position of a paginated connection.
type PageInfo struct {
	EndCursor   string
	HasNextPage bool
}

// IssueNode holds the per-issue totals used for aggregation.
type IssueNode struct {
	CommentCount  int
	TimelineCount int
}

// ReviewNode holds the comment total of one pull request review.
type ReviewNode struct {
	CommentCount int
}

// PullRequestNode holds the per-PR totals used for aggregation. ReviewNodes
// contains only the first page of reviews; ReviewCount is the full total.
type PullRequestNode struct {
	Number        int
	CommentCount  int
	CommitCount   int
	TimelineCount int
	ReviewCount   int
	ReviewNodes   []ReviewNode
}

// IssueConnection is the embedded first page of a repository's issues.
type IssueConnection struct {
	TotalCount int
	PageInfo   PageInfo
	Nodes      []IssueNode
}

// PullRequestConnection is the embedded first page of a repository's pull
// requests.
type PullRequestConnection struct {
	TotalCount int
	PageInfo   PageInfo
	Nodes      []PullRequestNode
}

// RepoSnapshot is one repository node from the organization walk, including
// the first page of its issue and pull request connections.
//
// PageCursor is the cursor the org page containing this snapshot was fetched
// with, empty for the first page. A run that fails mid-page saves this value
// and re-fetches the same page on resume.
type RepoSnapshot struct {
	Name       string
	OwnerLogin string

	CreatedAt time.Time
	PushedAt  time.Time
	UpdatedAt time.Time

	DiskUsageKB int
	IsEmpty     bool
	IsFork      bool
	IsArchived  bool
	HasWiki     bool
	URL         string

	BranchCount          int
	TagCount             int
	ProtectedBranchCount int
	CollaboratorCount    int
	DiscussionCount      int
	MilestoneCount       int
	ReleaseCount         int
	ProjectCount         int

	Issues       IssueConnection
	PullRequests PullRequestConnection

	PageCursor  string
	HasNextPage bool
}
