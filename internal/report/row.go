// Package report shapes repository snapshots into flat output rows and
// appends them to the CSV row sink.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alan/org-stats/internal/github"
)

// Migration-risk thresholds: repositories above either bound are flagged as
// problematic for downstream migration tooling.
const (
	migrationRecordThreshold = 60_000
	migrationSizeMBThreshold = 1_500
)

// Columns is the declared header order. Downstream readers rely on
// positional parsing, so this order never changes.
var Columns = []string{
	"Org_Name",
	"Repo_Name",
	"Is_Empty",
	"Last_Push",
	"Last_Update",
	"isFork",
	"isArchived",
	"Disk_Size_kb",
	"Repo_Size_mb",
	"Record_Count",
	"Collaborator_Count",
	"Protected_Branch_Count",
	"PR_Review_Count",
	"PR_Review_Comment_Count",
	"Commit_Comment_Count",
	"Milestone_Count",
	"PR_Count",
	"Project_Count",
	"Branch_Count",
	"Release_Count",
	"Issue_Count",
	"Issue_Event_Count",
	"Issue_Comment_Count",
	"Tag_Count",
	"Discussion_Count",
	"Has_Wiki",
	"Full_URL",
	"Migration_Issue",
	"Created",
}

// IssueTotals are the folded issue aggregates for one repository.
type IssueTotals struct {
	Count    int
	Comments int
	Events   int
}

// PullRequestTotals are the folded pull request aggregates for one
// repository. Comments and Events are the PR-derived contributions to the
// repository's issue comment and issue event totals.
type PullRequestTotals struct {
	Count          int
	ReviewCount    int
	ReviewComments int
	CommitComments int
	Comments       int
	Events         int
}

// Row is the flat output record, one per repository.
type Row struct {
	OrgName  string
	RepoName string

	IsEmpty    bool
	LastPush   time.Time
	LastUpdate time.Time
	IsFork     bool
	IsArchived bool

	DiskSizeKB int
	RepoSizeMB int

	RecordCount           int
	CollaboratorCount     int
	ProtectedBranchCount  int
	PRReviewCount         int
	PRReviewCommentCount  int
	CommitCommentCount    int
	MilestoneCount        int
	PRCount               int
	ProjectCount          int
	BranchCount           int
	ReleaseCount          int
	IssueCount            int
	IssueEventCount       int
	IssueCommentCount     int
	TagCount              int
	DiscussionCount       int

	HasWiki        bool
	FullURL        string
	MigrationIssue bool
	Created        time.Time
}

// BuildRow shapes a repository snapshot and its aggregates into an output
// row, computing the derived size, record-count and migration-risk fields.
func BuildRow(orgName string, snap *github.RepoSnapshot, issues IssueTotals, prs PullRequestTotals) (Row, error) {
	if snap.DiskUsageKB < 0 {
		return Row{}, fmt.Errorf("repository %s reports invalid disk size %d kB", snap.Name, snap.DiskUsageKB)
	}

	row := Row{
		OrgName:  orgName,
		RepoName: snap.Name,

		IsEmpty:    snap.IsEmpty,
		LastPush:   snap.PushedAt,
		LastUpdate: snap.UpdatedAt,
		IsFork:     snap.IsFork,
		IsArchived: snap.IsArchived,

		DiskSizeKB: snap.DiskUsageKB,
		RepoSizeMB: snap.DiskUsageKB / 1024,

		CollaboratorCount:    snap.CollaboratorCount,
		ProtectedBranchCount: snap.ProtectedBranchCount,
		PRReviewCount:        prs.ReviewCount,
		PRReviewCommentCount: prs.ReviewComments,
		CommitCommentCount:   prs.CommitComments,
		MilestoneCount:       snap.MilestoneCount,
		PRCount:              prs.Count,
		ProjectCount:         snap.ProjectCount,
		BranchCount:          snap.BranchCount,
		ReleaseCount:         snap.ReleaseCount,
		IssueCount:           issues.Count,
		IssueEventCount:      issues.Events + prs.Events,
		IssueCommentCount:    issues.Comments + prs.Comments,
		TagCount:             snap.TagCount,
		DiscussionCount:      snap.DiscussionCount,

		HasWiki: snap.HasWiki,
		FullURL: snap.URL,
		Created: snap.CreatedAt,
	}

	// Pull requests are counted twice: once as the PR count and once as the
	// review count, matching the source-of-truth record contract.
	row.RecordCount = row.CollaboratorCount +
		row.ProtectedBranchCount +
		2*row.PRCount +
		row.MilestoneCount +
		row.IssueCount +
		row.PRReviewCommentCount +
		row.CommitCommentCount +
		row.IssueCommentCount +
		row.IssueEventCount +
		row.ReleaseCount +
		row.ProjectCount

	row.MigrationIssue = row.RecordCount >= migrationRecordThreshold || row.RepoSizeMB > migrationSizeMBThreshold

	return row, nil
}

// Values renders the row in declared column order.
func (r Row) Values() []string {
	return []string{
		r.OrgName,
		r.RepoName,
		strconv.FormatBool(r.IsEmpty),
		formatTime(r.LastPush),
		formatTime(r.LastUpdate),
		strconv.FormatBool(r.IsFork),
		strconv.FormatBool(r.IsArchived),
		strconv.Itoa(r.DiskSizeKB),
		strconv.Itoa(r.RepoSizeMB),
		strconv.Itoa(r.RecordCount),
		strconv.Itoa(r.CollaboratorCount),
		strconv.Itoa(r.ProtectedBranchCount),
		strconv.Itoa(r.PRReviewCount),
		strconv.Itoa(r.PRReviewCommentCount),
		strconv.Itoa(r.CommitCommentCount),
		strconv.Itoa(r.MilestoneCount),
		strconv.Itoa(r.PRCount),
		strconv.Itoa(r.ProjectCount),
		strconv.Itoa(r.BranchCount),
		strconv.Itoa(r.ReleaseCount),
		strconv.Itoa(r.IssueCount),
		strconv.Itoa(r.IssueEventCount),
		strconv.Itoa(r.IssueCommentCount),
		strconv.Itoa(r.TagCount),
		strconv.Itoa(r.DiscussionCount),
		strconv.FormatBool(r.HasWiki),
		r.FullURL,
		strconv.FormatBool(r.MigrationIssue),
		formatTime(r.Created),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
