package analyzer

import (
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

// Analyzer computes pull request lifecycle timings from fetched bundles.
type Analyzer struct {
	logger *zap.Logger
}

func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger}
}

// Analyze derives per-PR timing metrics and an aggregate summary. Failed
// bundles contribute a detail row but are excluded from every aggregate;
// partial bundles are included with the metrics their missing parts would
// have fed left nil.
func (a *Analyzer) Analyze(repository string, bundles []*domain.PRBundle) *domain.AnalysisResult {
	result := &domain.AnalysisResult{
		Summary: domain.AnalysisSummary{Repository: repository},
		Details: make([]domain.PRDetail, 0, len(bundles)),
	}

	var ttfr, ttm, lead []float64

	for _, b := range bundles {
		if b == nil || b.PR == nil {
			continue
		}
		detail := a.analyzePR(repository, b)
		result.Details = append(result.Details, detail)

		switch b.Status {
		case domain.FetchFailed:
			result.Summary.FailedPRs++
			continue
		case domain.FetchPartial:
			result.Summary.PartialPRs++
		}

		result.Summary.TotalAnalyzed++
		if detail.Merged {
			result.Summary.MergedPRs++
		}
		if detail.HasReviews {
			result.Summary.ReviewedPRs++
		}
		if detail.TimeToFirstReviewHours != nil {
			ttfr = append(ttfr, *detail.TimeToFirstReviewHours)
		}
		if detail.TimeToMergeHours != nil {
			ttm = append(ttm, *detail.TimeToMergeHours)
		}
		if detail.CommitLeadTimeHours != nil {
			lead = append(lead, *detail.CommitLeadTimeHours)
		}
	}

	result.Summary.AvgTimeToFirstReview = average(ttfr)
	result.Summary.AvgTimeToMerge = average(ttm)
	result.Summary.AvgCommitLeadTime = average(lead)

	a.logger.Info("lifecycle analysis complete",
		zap.String("repository", repository),
		zap.Int("analyzed", result.Summary.TotalAnalyzed),
		zap.Int("merged", result.Summary.MergedPRs),
		zap.Int("failed", result.Summary.FailedPRs))
	return result
}

func (a *Analyzer) analyzePR(repository string, b *domain.PRBundle) domain.PRDetail {
	pr := b.PR
	detail := domain.PRDetail{
		Number:       pr.Number,
		Title:        pr.Title,
		State:        pr.State,
		CreatedAt:    pr.CreatedAt,
		MergedAt:     pr.MergedAt,
		Repository:   repository,
		ReviewCount:  len(b.Reviews),
		CommentCount: len(b.ReviewComments),
		CommitCount:  len(b.Commits),
		HasReviews:   len(b.Reviews) > 0,
		FetchStatus:  b.Status,
		MissingParts: b.Missing,
	}
	if pr.User != nil {
		detail.CreatorID = strconv.FormatInt(pr.User.ID, 10)
		detail.CreatorLogin = pr.User.Login
	}
	if b.Status == domain.FetchFailed {
		return detail
	}

	if first := firstReviewActivity(b); first != nil {
		detail.TimeToFirstReviewHours = hoursBetween(pr.CreatedAt, *first)
	}

	mergedAt := pr.MergedAt
	if mergedAt == nil && b.MergeInfo != nil {
		mergedAt = &b.MergeInfo.MergedAt
	}
	if mergedAt != nil {
		detail.Merged = true
		detail.MergedAt = mergedAt
		detail.TimeToMergeHours = hoursBetween(pr.CreatedAt, *mergedAt)
		if first := firstCommitDate(b.Commits); first != nil {
			detail.CommitLeadTimeHours = hoursBetween(*first, *mergedAt)
		}
	}
	return detail
}

// firstReviewActivity returns the earliest review signal on the PR: a
// submitted review, a review comment, or a "reviewed" timeline event.
func firstReviewActivity(b *domain.PRBundle) *time.Time {
	var earliest *time.Time
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if earliest == nil || t.Before(*earliest) {
			tt := t
			earliest = &tt
		}
	}
	for _, r := range b.Reviews {
		consider(r.SubmittedAt)
	}
	for _, c := range b.ReviewComments {
		consider(c.CreatedAt)
	}
	for _, ev := range b.Timeline {
		if ev.Event == "reviewed" {
			consider(ev.CreatedAt)
		}
	}
	return earliest
}

// firstCommitDate returns the earliest commit date on the PR, preferring the
// author date and falling back to the committer date.
func firstCommitDate(commits []domain.Commit) *time.Time {
	var earliest *time.Time
	for _, c := range commits {
		t := c.AuthorDate
		if t == nil {
			t = c.CommitterDate
		}
		if t == nil || t.IsZero() {
			continue
		}
		if earliest == nil || t.Before(*earliest) {
			tt := *t
			earliest = &tt
		}
	}
	return earliest
}

// hoursBetween returns the elapsed hours rounded to two decimals, or nil for
// an inverted interval (clock skew between API timestamps).
func hoursBetween(from, to time.Time) *float64 {
	if to.Before(from) {
		return nil
	}
	h := round2(to.Sub(from).Hours())
	return &h
}

func average(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	avg := round2(sum / float64(len(xs)))
	return &avg
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
