package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gh "github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	pages   [][]string
	err     error
	calls   []gh.RepositoryListByOrgOptions
	lastOrg string
}

func (f *fakeLister) ListByOrg(_ context.Context, org string, opts *gh.RepositoryListByOrgOptions) ([]*gh.Repository, *gh.Response, error) {
	f.lastOrg = org
	f.calls = append(f.calls, *opts)
	if f.err != nil {
		return nil, nil, f.err
	}

	page := opts.Page
	if page == 0 {
		page = 1
	}
	if page > len(f.pages) {
		return nil, &gh.Response{NextPage: 0}, nil
	}

	var repos []*gh.Repository
	for _, name := range f.pages[page-1] {
		repos = append(repos, &gh.Repository{Name: gh.String(name)})
	}

	next := 0
	if page < len(f.pages) {
		next = page + 1
	}
	return repos, &gh.Response{NextPage: next}, nil
}

func writeOutputFile(t *testing.T, names ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.csv")
	content := "Org_Name,Repo_Name\n"
	for _, name := range names {
		content += "acme," + name + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFindMissingNone(t *testing.T) {
	path := writeOutputFile(t, "alpha", "beta")
	lister := &fakeLister{pages: [][]string{{"alpha", "beta"}}}

	missing, err := FindMissing(context.Background(), lister, "acme", path, 100)

	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Equal(t, "acme", lister.lastOrg)
}

func TestFindMissingSortedAscending(t *testing.T) {
	path := writeOutputFile(t, "beta")
	lister := &fakeLister{pages: [][]string{{"zebra", "alpha", "beta", "mango"}}}

	missing, err := FindMissing(context.Background(), lister, "acme", path, 100)

	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mango", "zebra"}, missing)
}

func TestFindMissingWalksAllPages(t *testing.T) {
	path := writeOutputFile(t, "alpha")
	lister := &fakeLister{pages: [][]string{{"alpha", "beta"}, {"gamma"}, {"delta"}}}

	missing, err := FindMissing(context.Background(), lister, "acme", path, 2)

	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "delta", "gamma"}, missing)

	require.Len(t, lister.calls, 3)
	assert.Equal(t, 2, lister.calls[0].PerPage)
	assert.Equal(t, 0, lister.calls[0].Page)
	assert.Equal(t, 2, lister.calls[1].Page)
	assert.Equal(t, 3, lister.calls[2].Page)
}

func TestFindMissingDefaultsPageSize(t *testing.T) {
	path := writeOutputFile(t, "alpha")
	lister := &fakeLister{pages: [][]string{{"alpha"}}}

	_, err := FindMissing(context.Background(), lister, "acme", path, 0)

	require.NoError(t, err)
	require.Len(t, lister.calls, 1)
	assert.Equal(t, 100, lister.calls[0].PerPage)
}

func TestFindMissingListerError(t *testing.T) {
	path := writeOutputFile(t, "alpha")
	lister := &fakeLister{err: errors.New("403 forbidden")}

	_, err := FindMissing(context.Background(), lister, "acme", path, 100)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme")
}

func TestFindMissingOutputFileError(t *testing.T) {
	lister := &fakeLister{}

	_, err := FindMissing(context.Background(), lister, "acme", filepath.Join(t.TempDir(), "nope.csv"), 100)

	require.Error(t, err)
	assert.Empty(t, lister.calls, "the live listing is skipped when the output file cannot be read")
}
