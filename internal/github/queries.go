package github

import (
	"time"
)

// GraphQL query shapes. Field aliases keep the response keys stable so the
// mapping into the exported types below stays mechanical.

type pageInfoQuery struct {
	EndCursor   string
	HasNextPage bool
}

type issueQueryNode struct {
	Comments struct {
		TotalCount int
	}
	TimelineItems struct {
		TotalCount int
	}
}

type reviewQueryNode struct {
	Comments struct {
		TotalCount int
	}
}

type pullRequestQueryNode struct {
	Number   int
	Comments struct {
		TotalCount int
	}
	Commits struct {
		TotalCount int
	}
	TimelineItems struct {
		TotalCount int
	}
	Reviews struct {
		TotalCount int
		Nodes      []reviewQueryNode
	} `graphql:"reviews(first: $extraPageSize)"`
}

type repositoryQueryNode struct {
	Name  string
	Owner struct {
		Login string
	}
	CreatedAt  time.Time
	PushedAt   time.Time
	UpdatedAt  time.Time
	DiskUsage  int
	IsEmpty    bool
	IsFork     bool
	IsArchived bool
	HasWikiEnabled bool
	URL            string `graphql:"url"`

	Branches struct {
		TotalCount int
	} `graphql:"branches: refs(refPrefix: \"refs/heads/\")"`
	Tags struct {
		TotalCount int
	} `graphql:"tags: refs(refPrefix: \"refs/tags/\")"`
	BranchProtectionRules struct {
		TotalCount int
	}
	Collaborators struct {
		TotalCount int
	}
	Discussions struct {
		TotalCount int
	}
	Milestones struct {
		TotalCount int
	}
	Releases struct {
		TotalCount int
	}
	ProjectsV2 struct {
		TotalCount int
	}

	Issues struct {
		TotalCount int
		PageInfo   pageInfoQuery
		Nodes      []issueQueryNode
	} `graphql:"issues(first: $extraPageSize)"`
	PullRequests struct {
		TotalCount int
		PageInfo   pageInfoQuery
		Nodes      []pullRequestQueryNode
	} `graphql:"pullRequests(first: $extraPageSize)"`
}

// orgRepositoriesQuery walks the organization's repositories in ascending
// name order so the cursor is deterministic across resumed runs.
type orgRepositoriesQuery struct {
	Organization struct {
		Repositories struct {
			PageInfo pageInfoQuery
			Nodes    []repositoryQueryNode
		} `graphql:"repositories(first: $pageSize, after: $cursor, orderBy: {field: NAME, direction: ASC})"`
	} `graphql:"organization(login: $org)"`
}

type repoIssuesQuery struct {
	Repository struct {
		Issues struct {
			PageInfo pageInfoQuery
			Nodes    []issueQueryNode
		} `graphql:"issues(first: $pageSize, after: $cursor)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type repoPullRequestsQuery struct {
	Repository struct {
		PullRequests struct {
			PageInfo pageInfoQuery
			Nodes    []pullRequestQueryNode
		} `graphql:"pullRequests(first: $pageSize, after: $cursor)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

func mapIssueNode(n issueQueryNode) IssueNode {
	return IssueNode{
		CommentCount:  n.Comments.TotalCount,
		TimelineCount: n.TimelineItems.TotalCount,
	}
}

func mapPullRequestNode(n pullRequestQueryNode) PullRequestNode {
	reviews := make([]ReviewNode, 0, len(n.Reviews.Nodes))
	for _, r := range n.Reviews.Nodes {
		reviews = append(reviews, ReviewNode{CommentCount: r.Comments.TotalCount})
	}
	return PullRequestNode{
		Number:        n.Number,
		CommentCount:  n.Comments.TotalCount,
		CommitCount:   n.Commits.TotalCount,
		TimelineCount: n.TimelineItems.TotalCount,
		ReviewCount:   n.Reviews.TotalCount,
		ReviewNodes:   reviews,
	}
}

// mapSnapshot converts a repository node into a RepoSnapshot. after is the
// cursor the org page was fetched with; carrying it on every snapshot lets a
// resumed run re-fetch the page containing the repository.
func mapSnapshot(n repositoryQueryNode, page pageInfoQuery, after string) *RepoSnapshot {
	snap := &RepoSnapshot{
		Name:       n.Name,
		OwnerLogin: n.Owner.Login,

		CreatedAt: n.CreatedAt,
		PushedAt:  n.PushedAt,
		UpdatedAt: n.UpdatedAt,

		DiskUsageKB: n.DiskUsage,
		IsEmpty:     n.IsEmpty,
		IsFork:      n.IsFork,
		IsArchived:  n.IsArchived,
		HasWiki:     n.HasWikiEnabled,
		URL:         n.URL,

		BranchCount:          n.Branches.TotalCount,
		TagCount:             n.Tags.TotalCount,
		ProtectedBranchCount: n.BranchProtectionRules.TotalCount,
		CollaboratorCount:    n.Collaborators.TotalCount,
		DiscussionCount:      n.Discussions.TotalCount,
		MilestoneCount:       n.Milestones.TotalCount,
		ReleaseCount:         n.Releases.TotalCount,
		ProjectCount:         n.ProjectsV2.TotalCount,

		PageCursor:  after,
		HasNextPage: page.HasNextPage,
	}

	snap.Issues = IssueConnection{
		TotalCount: n.Issues.TotalCount,
		PageInfo: PageInfo{
			EndCursor:   n.Issues.PageInfo.EndCursor,
			HasNextPage: n.Issues.PageInfo.HasNextPage,
		},
	}
	for _, in := range n.Issues.Nodes {
		snap.Issues.Nodes = append(snap.Issues.Nodes, mapIssueNode(in))
	}

	snap.PullRequests = PullRequestConnection{
		TotalCount: n.PullRequests.TotalCount,
		PageInfo: PageInfo{
			EndCursor:   n.PullRequests.PageInfo.EndCursor,
			HasNextPage: n.PullRequests.PageInfo.HasNextPage,
		},
	}
	for _, pn := range n.PullRequests.Nodes {
		snap.PullRequests.Nodes = append(snap.PullRequests.Nodes, mapPullRequestNode(pn))
	}

	return snap
}
