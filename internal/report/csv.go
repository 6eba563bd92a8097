package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
	apperrors "github.com/dannyviti/gh-pr-analyzer/internal/errors"
	"github.com/dannyviti/gh-pr-analyzer/internal/reviewer"
)

// prHeaders is the lifecycle report schema.
var prHeaders = []string{
	"pr_number",
	"title",
	"state",
	"created_at",
	"merged_at",
	"repository_name",
	"pr_creator_github_id",
	"pr_creator_username",
	"time_to_first_review_hours",
	"time_to_merge_hours",
	"commit_lead_time_hours",
	"has_reviews",
	"review_count",
	"comment_count",
	"commit_count",
	"is_merged",
}

// reviewerHeaders is the workload report schema.
var reviewerHeaders = []string{
	"reviewer_login",
	"reviewer_name",
	"reviewer_type",
	"total_requests",
	"pr_numbers",
	"request_sources",
	"first_request_date",
	"last_request_date",
	"avg_requests_per_month",
	"percentage_of_total",
	"workload_status",
	"workload_category",
}

// CSVReporter writes analysis results as CSV files with a comment-prefixed
// summary block ahead of the column headers.
type CSVReporter struct {
	outputPath string
	now        func() time.Time
	logger     *zap.Logger
}

func NewCSVReporter(outputPath string, logger *zap.Logger) (*CSVReporter, error) {
	if outputPath == "" {
		return nil, apperrors.NewBadRequestError("output path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewInternalError("failed to create output directory", err)
		}
	}
	return &CSVReporter{outputPath: outputPath, now: time.Now, logger: logger}, nil
}

// OutputPath returns the path the report will be written to.
func (r *CSVReporter) OutputPath() string { return r.outputPath }

// WriteLifecycleReport writes the per-PR lifecycle analysis.
func (r *CSVReporter) WriteLifecycleReport(result *domain.AnalysisResult) error {
	if result == nil {
		return apperrors.NewBadRequestError("analysis result is required")
	}

	f, err := os.Create(r.outputPath)
	if err != nil {
		return apperrors.NewInternalError("failed to create report file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	r.writeLifecycleSummary(w, result.Summary)
	if err := w.Write(prHeaders); err != nil {
		return apperrors.NewInternalError("failed to write headers", err)
	}
	for _, d := range result.Details {
		if err := w.Write(prRow(d)); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to write PR #%d", d.Number), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.NewInternalError("failed to flush report", err)
	}

	r.logger.Info("generated lifecycle report",
		zap.String("path", r.outputPath),
		zap.Int("prs", len(result.Details)))
	return nil
}

func (r *CSVReporter) writeLifecycleSummary(w *csv.Writer, s domain.AnalysisSummary) {
	comment := func(format string, args ...any) {
		_ = w.Write([]string{fmt.Sprintf("# "+format, args...)})
	}
	comment("GitHub PR Lifecycle Analysis Report - Generated %s", r.now().Format(time.RFC3339))
	if s.Repository != "" {
		comment("Repository: %s", s.Repository)
	}
	comment("Total PRs Analyzed: %d", s.TotalAnalyzed)
	comment("Merged PRs: %d", s.MergedPRs)
	comment("Reviewed PRs: %d", s.ReviewedPRs)
	if s.AvgTimeToFirstReview != nil {
		comment("Average Time to First Review: %.2f hours", *s.AvgTimeToFirstReview)
	}
	if s.AvgTimeToMerge != nil {
		comment("Average Time to Merge: %.2f hours", *s.AvgTimeToMerge)
	}
	if s.AvgCommitLeadTime != nil {
		comment("Average Commit Lead Time: %.2f hours", *s.AvgCommitLeadTime)
	}
	_ = w.Write([]string{""})
}

func prRow(d domain.PRDetail) []string {
	return []string{
		strconv.Itoa(d.Number),
		sanitizeText(d.Title),
		d.State,
		formatTime(&d.CreatedAt),
		formatTime(d.MergedAt),
		d.Repository,
		d.CreatorID,
		d.CreatorLogin,
		formatNumber(d.TimeToFirstReviewHours),
		formatNumber(d.TimeToMergeHours),
		formatNumber(d.CommitLeadTimeHours),
		formatBool(d.HasReviews),
		strconv.Itoa(d.ReviewCount),
		strconv.Itoa(d.CommentCount),
		strconv.Itoa(d.CommitCount),
		formatBool(d.Merged),
	}
}

// WriteReviewerReport writes the reviewer workload analysis. months scales
// the per-month request average; values below one are treated as one month.
func (r *CSVReporter) WriteReviewerReport(summary *domain.WorkloadSummary, months int) error {
	if summary == nil {
		return apperrors.NewBadRequestError("workload summary is required")
	}
	if months < 1 {
		months = 1
	}

	f, err := os.Create(r.outputPath)
	if err != nil {
		return apperrors.NewInternalError("failed to create report file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	r.writeReviewerSummary(w, summary)
	if err := w.Write(reviewerHeaders); err != nil {
		return apperrors.NewInternalError("failed to write headers", err)
	}

	total := summary.Statistics.TotalRequests
	for _, load := range reviewer.SortedLoads(summary.Reviewers) {
		if err := w.Write(reviewerRow(load, &summary.Overload, total, months)); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to write reviewer %s", load.Login), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.NewInternalError("failed to flush report", err)
	}

	r.logger.Info("generated reviewer report",
		zap.String("path", r.outputPath),
		zap.Int("reviewers", len(summary.Reviewers)))
	return nil
}

func (r *CSVReporter) writeReviewerSummary(w *csv.Writer, s *domain.WorkloadSummary) {
	comment := func(format string, args ...any) {
		_ = w.Write([]string{fmt.Sprintf("# "+format, args...)})
	}
	comment("GitHub PR Reviewer Workload Analysis Report - Generated %s", r.now().Format(time.RFC3339))
	if s.Repository != "" {
		comment("Repository: %s", s.Repository)
	}
	comment("Total PRs Analyzed: %d", s.TotalPRs)
	comment("Overload Threshold: %d requests", s.Threshold)
	comment("Team Analysis Enabled: %t", s.IncludeTeams)
	comment("Total Reviewers: %d", s.Statistics.TotalReviewers)
	comment("Total Review Requests: %d", s.Statistics.TotalRequests)
	comment("Average Requests per Reviewer: %.2f", s.Statistics.Mean)
	comment("Median Requests per Reviewer: %.2f", s.Statistics.Median)
	comment("Top 20%% Reviewers Handle: %.1f%% of requests", s.Distribution.ConcentrationRatio)
	comment("Gini Coefficient (inequality): %.3f", s.Distribution.GiniCoefficient)
	comment("Diversity Score: %.3f", s.Distribution.DiversityScore)
	if len(s.DegradedTeams) > 0 {
		comment("Degraded Team Expansions: %s", strings.Join(s.DegradedTeams, ", "))
	}
	_ = w.Write([]string{""})
}

func reviewerRow(load *domain.ReviewerLoad, overload *domain.OverloadReport, totalRequests, months int) []string {
	reviewerType := "user"
	if load.IsTeam() {
		reviewerType = "team"
	}

	name := load.Name
	if name == "" {
		name = load.Login
	}

	prNumbers := make([]string, len(load.PRNumbers))
	for i, n := range load.PRNumbers {
		prNumbers[i] = strconv.Itoa(n)
	}

	var percentage float64
	if totalRequests > 0 {
		percentage = float64(load.TotalRequests) / float64(totalRequests) * 100
	}
	avgPerMonth := float64(load.TotalRequests) / float64(months)

	status := overload.StatusFor(load.Login)
	category := "Normal Load"
	switch status {
	case domain.WorkloadOverloaded:
		category = "Overloaded"
	case domain.WorkloadHigh:
		category = "High Load"
	}

	return []string{
		load.Login,
		sanitizeText(name),
		reviewerType,
		strconv.Itoa(load.TotalRequests),
		strings.Join(prNumbers, ", "),
		strings.Join(load.RequestSources, ", "),
		formatTime(load.FirstRequestDate),
		formatTime(load.LastRequestDate),
		fmt.Sprintf("%.2f", avgPerMonth),
		fmt.Sprintf("%.2f", percentage),
		status,
		category,
	}
}

// sanitizeText collapses whitespace and truncates long values so titles
// cannot break row structure or bloat the report.
func sanitizeText(text string) string {
	if text == "" {
		return ""
	}
	s := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(text)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		s = s[:197] + "..."
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func formatNumber(n *float64) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *n)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
