package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

var reportTime = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

func newTestReporter(t *testing.T) *CSVReporter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.csv")
	r, err := NewCSVReporter(path, zap.NewNop())
	require.NoError(t, err)
	r.now = func() time.Time { return reportTime }
	return r
}

func fptr(f float64) *float64 { return &f }

func TestWriteLifecycleReport(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	merged := created.Add(26 * time.Hour)
	result := &domain.AnalysisResult{
		Summary: domain.AnalysisSummary{
			Repository:     "acme/widgets",
			TotalAnalyzed:  2,
			MergedPRs:      1,
			ReviewedPRs:    1,
			AvgTimeToMerge: fptr(26.0),
		},
		Details: []domain.PRDetail{
			{
				Number:                 1,
				Title:                  "fix\nthe   thing",
				State:                  "closed",
				CreatedAt:              created,
				MergedAt:               &merged,
				Repository:             "acme/widgets",
				CreatorID:              "42",
				CreatorLogin:           "dave",
				TimeToFirstReviewHours: fptr(3.5),
				TimeToMergeHours:       fptr(26.0),
				HasReviews:             true,
				ReviewCount:            2,
				Merged:                 true,
			},
			{
				Number:    2,
				Title:     "open work",
				State:     "open",
				CreatedAt: created,
			},
		},
	}

	reporter := newTestReporter(t)
	require.NoError(t, reporter.WriteLifecycleReport(result))

	raw, err := os.ReadFile(reporter.OutputPath())
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "# GitHub PR Lifecycle Analysis Report - Generated 2024-06-01T08:30:00Z")
	assert.Contains(t, content, "# Repository: acme/widgets")
	assert.Contains(t, content, "# Total PRs Analyzed: 2")
	assert.Contains(t, content, "# Average Time to Merge: 26.00 hours")
	assert.NotContains(t, content, "Average Time to First Review")

	header, rows, err := readTrackingCSV(reporter.OutputPath())
	require.NoError(t, err)
	assert.Equal(t, prHeaders, header)
	require.Len(t, rows, 2)

	first := rows[0]
	require.Len(t, first, len(prHeaders))
	assert.Equal(t, "1", first[0])
	assert.Equal(t, "fix the thing", first[1])
	assert.Equal(t, "2024-05-01 10:00:00 UTC", first[3])
	assert.Equal(t, "2024-05-02 12:00:00 UTC", first[4])
	assert.Equal(t, "42", first[6])
	assert.Equal(t, "3.50", first[8])
	assert.Equal(t, "26.00", first[9])
	assert.Equal(t, "True", first[11])
	assert.Equal(t, "2", first[12])
	assert.Equal(t, "True", first[15])

	second := rows[1]
	assert.Equal(t, "", second[4])
	assert.Equal(t, "", second[8])
	assert.Equal(t, "False", second[11])
	assert.Equal(t, "False", second[15])
}

func TestWriteReviewerReport(t *testing.T) {
	first := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	last := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	summary := &domain.WorkloadSummary{
		Repository:   "acme/widgets",
		TotalPRs:     4,
		IncludeTeams: true,
		Threshold:    10,
		Reviewers: map[string]*domain.ReviewerLoad{
			"alice": {
				Login:            "alice",
				Name:             "Alice",
				TotalRequests:    3,
				PRNumbers:        []int{1, 2, 4},
				RequestSources:   []string{"individual", "team:platform"},
				FirstRequestDate: &first,
				LastRequestDate:  &last,
			},
			"team:infra": {
				Login:          "team:infra",
				TotalRequests:  1,
				PRNumbers:      []int{3},
				RequestSources: []string{"team:infra"},
			},
		},
		Statistics: domain.WorkloadStatistics{
			TotalReviewers: 2,
			TotalRequests:  4,
			Mean:           2,
			Median:         2,
		},
		Overload: domain.OverloadReport{
			Threshold: 10,
			High:      []string{"alice"},
		},
		Distribution: domain.DistributionReport{
			ConcentrationRatio: 75,
			GiniCoefficient:    0.25,
			DiversityScore:     0.75,
		},
		DegradedTeams: []string{"infra"},
	}

	reporter := newTestReporter(t)
	require.NoError(t, reporter.WriteReviewerReport(summary, 2))

	raw, err := os.ReadFile(reporter.OutputPath())
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "# GitHub PR Reviewer Workload Analysis Report")
	assert.Contains(t, content, "# Overload Threshold: 10 requests")
	assert.Contains(t, content, "# Team Analysis Enabled: true")
	assert.Contains(t, content, "# Top 20% Reviewers Handle: 75.0% of requests")
	assert.Contains(t, content, "# Gini Coefficient (inequality): 0.250")
	assert.Contains(t, content, "# Degraded Team Expansions: infra")

	header, rows, err := readTrackingCSV(reporter.OutputPath())
	require.NoError(t, err)
	assert.Equal(t, reviewerHeaders, header)
	require.Len(t, rows, 2)

	alice := rows[0]
	require.Len(t, alice, len(reviewerHeaders))
	assert.Equal(t, "alice", alice[0])
	assert.Equal(t, "Alice", alice[1])
	assert.Equal(t, "user", alice[2])
	assert.Equal(t, "3", alice[3])
	assert.Equal(t, "1, 2, 4", alice[4])
	assert.Equal(t, "individual, team:platform", alice[5])
	assert.Equal(t, "2024-04-02 09:00:00 UTC", alice[6])
	assert.Equal(t, "2024-05-20 09:00:00 UTC", alice[7])
	assert.Equal(t, "1.50", alice[8])
	assert.Equal(t, "75.00", alice[9])
	assert.Equal(t, domain.WorkloadHigh, alice[10])
	assert.Equal(t, "High Load", alice[11])

	team := rows[1]
	assert.Equal(t, "team:infra", team[0])
	// placeholder falls back to the login for the display name
	assert.Equal(t, "team:infra", team[1])
	assert.Equal(t, "team", team[2])
	assert.Equal(t, "", team[6])
	assert.Equal(t, "0.50", team[8])
	assert.Equal(t, domain.WorkloadNormal, team[10])
	assert.Equal(t, "Normal Load", team[11])
}

func TestNewCSVReporterValidation(t *testing.T) {
	_, err := NewCSVReporter("", zap.NewNop())
	assert.Error(t, err)

	nested := filepath.Join(t.TempDir(), "sub", "dir", "out.csv")
	r, err := NewCSVReporter(nested, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, nested, r.OutputPath())
	info, err := os.Stat(filepath.Dir(nested))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "", sanitizeText(""))
	assert.Equal(t, "a b c", sanitizeText("a\nb\tc"))
	assert.Equal(t, "one two", sanitizeText("  one \r\n  two  "))

	long := strings.Repeat("x", 250)
	got := sanitizeText(long)
	assert.Len(t, got, 200)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("x", 197), got[:197])
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "", formatTime(nil))
	var zero time.Time
	assert.Equal(t, "", formatTime(&zero))

	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2024, 1, 2, 10, 0, 0, 0, est)
	assert.Equal(t, "2024-01-02 15:00:00 UTC", formatTime(&local))

	assert.Equal(t, "", formatNumber(nil))
	assert.Equal(t, "12.35", formatNumber(fptr(12.345)))
	assert.Equal(t, "True", formatBool(true))
	assert.Equal(t, "False", formatBool(false))
}
