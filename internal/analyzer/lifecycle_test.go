package analyzer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

var base = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func mergedBundle(number int, createdAt, mergedAt time.Time) *domain.PRBundle {
	firstCommit := createdAt.Add(-2 * time.Hour)
	return &domain.PRBundle{
		PR: &domain.PullRequest{
			Number:    number,
			Title:     "change things",
			State:     "closed",
			CreatedAt: createdAt,
			MergedAt:  &mergedAt,
			User:      &domain.User{ID: 42, Login: "dave"},
		},
		Reviews: []domain.Review{
			{ID: 1, State: "APPROVED", User: &domain.User{Login: "alice"}, SubmittedAt: createdAt.Add(3 * time.Hour)},
		},
		MergeInfo: &domain.MergeInfo{MergedAt: mergedAt},
		Commits:   []domain.Commit{{SHA: "abc", AuthorDate: &firstCommit}},
		Status:    domain.FetchComplete,
	}
}

func TestAnalyzeComputesTimings(t *testing.T) {
	merged := base.Add(10 * time.Hour)
	result := NewAnalyzer(zap.NewNop()).Analyze("acme/widgets",
		[]*domain.PRBundle{mergedBundle(1, base, merged)})

	require.Len(t, result.Details, 1)
	d := result.Details[0]

	require.NotNil(t, d.TimeToFirstReviewHours)
	assert.Equal(t, 3.0, *d.TimeToFirstReviewHours)
	require.NotNil(t, d.TimeToMergeHours)
	assert.Equal(t, 10.0, *d.TimeToMergeHours)
	// First commit was authored 2h before the PR opened.
	require.NotNil(t, d.CommitLeadTimeHours)
	assert.Equal(t, 12.0, *d.CommitLeadTimeHours)

	assert.True(t, d.Merged)
	assert.True(t, d.HasReviews)
	assert.Equal(t, "42", d.CreatorID)
	assert.Equal(t, "dave", d.CreatorLogin)
}

func TestAnalyzeFirstReviewActivityIsEarliestSignal(t *testing.T) {
	b := mergedBundle(1, base, base.Add(10*time.Hour))
	// An inline comment lands before the review submission.
	b.ReviewComments = []domain.ReviewComment{
		{ID: 5, User: &domain.User{Login: "bob"}, CreatedAt: base.Add(time.Hour)},
	}
	b.Timeline = []domain.TimelineEvent{
		{Event: "reviewed", CreatedAt: base.Add(2 * time.Hour)},
		{Event: "labeled", CreatedAt: base.Add(10 * time.Minute)},
	}

	result := NewAnalyzer(zap.NewNop()).Analyze("acme/widgets", []*domain.PRBundle{b})

	d := result.Details[0]
	require.NotNil(t, d.TimeToFirstReviewHours)
	// The labeled event is not review activity.
	assert.Equal(t, 1.0, *d.TimeToFirstReviewHours)
}

func TestAnalyzeUnmergedPR(t *testing.T) {
	b := &domain.PRBundle{
		PR: &domain.PullRequest{
			Number:    2,
			State:     "open",
			CreatedAt: base,
			User:      &domain.User{Login: "dave"},
		},
		Status: domain.FetchComplete,
	}

	result := NewAnalyzer(zap.NewNop()).Analyze("acme/widgets", []*domain.PRBundle{b})

	d := result.Details[0]
	assert.False(t, d.Merged)
	assert.Nil(t, d.TimeToMergeHours)
	assert.Nil(t, d.TimeToFirstReviewHours)
	assert.Nil(t, d.CommitLeadTimeHours)
	assert.Nil(t, result.Summary.AvgTimeToMerge)
	assert.Equal(t, 1, result.Summary.TotalAnalyzed)
}

func TestAnalyzeFailedBundlesExcludedFromAggregates(t *testing.T) {
	good := mergedBundle(1, base, base.Add(4*time.Hour))
	bad := &domain.PRBundle{
		PR:     &domain.PullRequest{Number: 2, CreatedAt: base, User: &domain.User{Login: "erin"}},
		Status: domain.FetchFailed,
		Err:    errors.New("boom"),
	}

	result := NewAnalyzer(zap.NewNop()).Analyze("acme/widgets", []*domain.PRBundle{good, bad})

	// The failed item keeps its detail row but feeds no aggregate.
	assert.Len(t, result.Details, 2)
	assert.Equal(t, 1, result.Summary.TotalAnalyzed)
	assert.Equal(t, 1, result.Summary.FailedPRs)
	require.NotNil(t, result.Summary.AvgTimeToMerge)
	assert.Equal(t, 4.0, *result.Summary.AvgTimeToMerge)
}

func TestAnalyzePartialBundlesIncluded(t *testing.T) {
	b := mergedBundle(1, base, base.Add(6*time.Hour))
	b.Status = domain.FetchPartial
	b.Missing = []string{domain.PartTimeline}

	result := NewAnalyzer(zap.NewNop()).Analyze("acme/widgets", []*domain.PRBundle{b})

	assert.Equal(t, 1, result.Summary.TotalAnalyzed)
	assert.Equal(t, 1, result.Summary.PartialPRs)
	require.NotNil(t, result.Summary.AvgTimeToMerge)
	assert.Equal(t, domain.FetchPartial, result.Details[0].FetchStatus)
	assert.Equal(t, []string{domain.PartTimeline}, result.Details[0].MissingParts)
}

func TestAnalyzeCommitLeadTimeFallsBackToCommitterDate(t *testing.T) {
	merged := base.Add(10 * time.Hour)
	b := mergedBundle(1, base, merged)
	committed := base.Add(-1 * time.Hour)
	b.Commits = []domain.Commit{{SHA: "abc", CommitterDate: &committed}}

	result := NewAnalyzer(zap.NewNop()).Analyze("acme/widgets", []*domain.PRBundle{b})

	d := result.Details[0]
	require.NotNil(t, d.CommitLeadTimeHours)
	assert.Equal(t, 11.0, *d.CommitLeadTimeHours)
}

func TestAnalyzeAveragesRoundToTwoDecimals(t *testing.T) {
	b1 := mergedBundle(1, base, base.Add(time.Hour))
	b2 := mergedBundle(2, base, base.Add(2*time.Hour))

	result := NewAnalyzer(zap.NewNop()).Analyze("acme/widgets", []*domain.PRBundle{b1, b2})

	require.NotNil(t, result.Summary.AvgTimeToMerge)
	assert.Equal(t, 1.5, *result.Summary.AvgTimeToMerge)
	assert.Equal(t, 2, result.Summary.MergedPRs)
}

func TestHoursBetweenRoundsAndGuards(t *testing.T) {
	from := base
	h := hoursBetween(from, from.Add(90*time.Minute))
	require.NotNil(t, h)
	assert.Equal(t, 1.5, *h)

	h = hoursBetween(from, from.Add(100*time.Second))
	require.NotNil(t, h)
	assert.Equal(t, 0.03, *h)

	assert.Nil(t, hoursBetween(from, from.Add(-time.Minute)))
}
