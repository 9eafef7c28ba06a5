package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan/org-stats/internal/github"
)

func TestBuildRowRecordCount(t *testing.T) {
	snap := &github.RepoSnapshot{
		Name:                 "widgets",
		DiskUsageKB:          2048,
		CollaboratorCount:    4,
		ProtectedBranchCount: 2,
		MilestoneCount:       3,
		ReleaseCount:         5,
		ProjectCount:         1,
	}
	issues := IssueTotals{Count: 10, Comments: 30, Events: 40}
	prs := PullRequestTotals{
		Count:          7,
		ReviewCount:    12,
		ReviewComments: 20,
		CommitComments: 15,
		Comments:       9,
		Events:         11,
	}

	row, err := BuildRow("Acme", snap, issues, prs)
	require.NoError(t, err)

	assert.Equal(t, 39, row.IssueCommentCount)
	assert.Equal(t, 51, row.IssueEventCount)

	// 4 + 2 + 2*7 + 3 + 10 + 20 + 15 + 39 + 51 + 5 + 1
	assert.Equal(t, 164, row.RecordCount)
	assert.False(t, row.MigrationIssue)
}

func TestBuildRowSizeConversion(t *testing.T) {
	tests := []struct {
		name   string
		diskKB int
		wantMB int
	}{
		{name: "zero", diskKB: 0, wantMB: 0},
		{name: "below one megabyte truncates", diskKB: 1023, wantMB: 0},
		{name: "exactly one megabyte", diskKB: 1024, wantMB: 1},
		{name: "partial megabyte truncates", diskKB: 2049, wantMB: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := BuildRow("acme", &github.RepoSnapshot{Name: "r", DiskUsageKB: tt.diskKB}, IssueTotals{}, PullRequestTotals{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMB, row.RepoSizeMB)
			assert.Equal(t, tt.diskKB, row.DiskSizeKB)
		})
	}
}

func TestBuildRowRejectsNegativeDiskSize(t *testing.T) {
	_, err := BuildRow("acme", &github.RepoSnapshot{Name: "broken", DiskUsageKB: -1}, IssueTotals{}, PullRequestTotals{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, err.Error(), "invalid disk size")
}

func TestBuildRowMigrationIssue(t *testing.T) {
	tests := []struct {
		name       string
		issueCount int
		diskKB     int
		want       bool
	}{
		{name: "small repo is fine", issueCount: 100, diskKB: 1024, want: false},
		{name: "record count at threshold", issueCount: 60_000, diskKB: 0, want: true},
		{name: "record count just below threshold", issueCount: 59_999, diskKB: 0, want: false},
		{name: "size over threshold", issueCount: 0, diskKB: 1501 * 1024, want: true},
		{name: "size at threshold is fine", issueCount: 0, diskKB: 1500 * 1024, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &github.RepoSnapshot{Name: "r", DiskUsageKB: tt.diskKB}
			row, err := BuildRow("acme", snap, IssueTotals{Count: tt.issueCount}, PullRequestTotals{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, row.MigrationIssue)
		})
	}
}

func TestRowValuesMatchColumnOrder(t *testing.T) {
	created := time.Date(2020, 3, 14, 9, 26, 53, 0, time.UTC)
	pushed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	snap := &github.RepoSnapshot{
		Name:        "widgets",
		CreatedAt:   created,
		PushedAt:    pushed,
		UpdatedAt:   pushed,
		DiskUsageKB: 4096,
		IsFork:      true,
		HasWiki:     true,
		URL:         "https://github.com/acme/widgets",
	}

	row, err := BuildRow("acme", snap, IssueTotals{Count: 2}, PullRequestTotals{Count: 1})
	require.NoError(t, err)

	values := row.Values()
	require.Len(t, values, len(Columns))

	byColumn := map[string]string{}
	for i, column := range Columns {
		byColumn[column] = values[i]
	}

	assert.Equal(t, "acme", byColumn["Org_Name"])
	assert.Equal(t, "widgets", byColumn["Repo_Name"])
	assert.Equal(t, "false", byColumn["Is_Empty"])
	assert.Equal(t, "true", byColumn["isFork"])
	assert.Equal(t, "false", byColumn["isArchived"])
	assert.Equal(t, "4096", byColumn["Disk_Size_kb"])
	assert.Equal(t, "4", byColumn["Repo_Size_mb"])
	assert.Equal(t, "2", byColumn["Issue_Count"])
	assert.Equal(t, "1", byColumn["PR_Count"])
	assert.Equal(t, "true", byColumn["Has_Wiki"])
	assert.Equal(t, "https://github.com/acme/widgets", byColumn["Full_URL"])
	assert.Equal(t, "2020-03-14T09:26:53Z", byColumn["Created"])
	assert.Equal(t, "2025-01-02T03:04:05Z", byColumn["Last_Push"])
}

func TestRowValuesRendersZeroTimesEmpty(t *testing.T) {
	row, err := BuildRow("acme", &github.RepoSnapshot{Name: "bare", IsEmpty: true}, IssueTotals{}, PullRequestTotals{})
	require.NoError(t, err)

	values := row.Values()
	byColumn := map[string]string{}
	for i, column := range Columns {
		byColumn[column] = values[i]
	}

	assert.Equal(t, "", byColumn["Last_Push"])
	assert.Equal(t, "", byColumn["Last_Update"])
	assert.Equal(t, "", byColumn["Created"])
	assert.Equal(t, "true", byColumn["Is_Empty"])
}
