package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
)

func writeTracking(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestMergeCombinesTrackingFiles(t *testing.T) {
	dir := t.TempDir()
	writeTracking(t, dir, "pr_tracking_widgets.csv",
		"# GitHub PR Lifecycle Analysis Report\n"+
			"# Total PRs Analyzed: 2\n"+
			"\n"+
			"pr_number,title\n"+
			"1,first change\n"+
			"2,second change\n")
	writeTracking(t, dir, "pr_tracking_gadgets.csv",
		"# GitHub PR Lifecycle Analysis Report\n"+
			"\n"+
			"pr_number,title\n"+
			"7,gadget change\n")
	writeTracking(t, dir, "pr_tracking_reviewers_widgets.csv",
		"# GitHub PR Reviewer Workload Analysis Report\n"+
			"\n"+
			"reviewer_login,total_requests\n"+
			"alice,3\n")
	// a previous merge output must not be re-merged
	writeTracking(t, dir, "pr_tracking_combined.csv",
		"pr_number,title,repository\n99,stale,old\n")

	result, err := NewMerger(dir, "", zap.NewNop()).Merge()
	require.NoError(t, err)

	assert.Equal(t, []string{"gadgets", "widgets"}, result.Repositories)
	assert.Equal(t, 3, result.PRRows)
	assert.Equal(t, 1, result.ReviewerRows)
	assert.Equal(t, filepath.Join(dir, "pr_tracking_combined.csv"), result.PROutput)
	assert.Equal(t, filepath.Join(dir, "pr_tracking_reviewers_combined.csv"), result.ReviewerOut)

	header, rows, err := readTrackingCSV(result.PROutput)
	require.NoError(t, err)
	assert.Equal(t, []string{"pr_number", "title", "repository"}, header)
	require.Len(t, rows, 3)
	// rows come back sorted by repository
	assert.Equal(t, []string{"7", "gadget change", "gadgets"}, rows[0])
	assert.Equal(t, []string{"1", "first change", "widgets"}, rows[1])
	assert.Equal(t, []string{"2", "second change", "widgets"}, rows[2])

	header, rows, err = readTrackingCSV(result.ReviewerOut)
	require.NoError(t, err)
	assert.Equal(t, []string{"reviewer_login", "total_requests", "repository"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"alice", "3", "widgets"}, rows[0])
}

func TestMergeKeepsExistingRepositoryColumn(t *testing.T) {
	dir := t.TempDir()
	writeTracking(t, dir, "pr_tracking_widgets.csv",
		"pr_number,repository\n1,acme/widgets\n")

	result, err := NewMerger(dir, "", zap.NewNop()).Merge()
	require.NoError(t, err)

	header, rows, err := readTrackingCSV(result.PROutput)
	require.NoError(t, err)
	assert.Equal(t, []string{"pr_number", "repository"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"1", "acme/widgets"}, rows[0])
}

func TestMergeSeparateOutputDir(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "combined")
	writeTracking(t, in, "pr_tracking_widgets.csv", "pr_number,title\n1,change\n")

	result, err := NewMerger(in, out, zap.NewNop()).Merge()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "pr_tracking_combined.csv"), result.PROutput)
	_, err = os.Stat(result.PROutput)
	require.NoError(t, err)
}

func TestMergeNoTrackingFiles(t *testing.T) {
	_, err := NewMerger(t.TempDir(), "", zap.NewNop()).Merge()
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRepoNameFromFile(t *testing.T) {
	assert.Equal(t, "widgets", repoNameFromFile("/tmp/pr_tracking_widgets.csv"))
	assert.Equal(t, "widgets", repoNameFromFile("pr_tracking_reviewers_widgets.csv"))
}

func TestReadTrackingCSVSkipsPreamble(t *testing.T) {
	dir := t.TempDir()
	writeTracking(t, dir, "pr_tracking_x.csv",
		"# comment line\n\n\"# quoted, with comma\"\npr_number,title\n1,a\n")

	header, rows, err := readTrackingCSV(filepath.Join(dir, "pr_tracking_x.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pr_number", "title"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"1", "a"}, rows[0])
}
