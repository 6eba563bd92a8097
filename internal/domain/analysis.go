package domain

import "time"

// PRDetail is the per-PR lifecycle analysis row.
type PRDetail struct {
	Number          int
	Title           string
	State           string
	CreatedAt       time.Time
	MergedAt        *time.Time
	Repository      string
	CreatorID       string
	CreatorLogin    string
	TimeToFirstReviewHours *float64
	TimeToMergeHours       *float64
	CommitLeadTimeHours    *float64
	HasReviews      bool
	ReviewCount     int
	CommentCount    int
	CommitCount     int
	Merged          bool
	FetchStatus     FetchStatus
	MissingParts    []string
}

// AnalysisSummary aggregates lifecycle metrics across the analyzed PRs.
// Averages are computed only over PRs that have the metric; nil means no PR
// had data for it.
type AnalysisSummary struct {
	Repository            string
	TotalAnalyzed         int
	MergedPRs             int
	ReviewedPRs           int
	PartialPRs            int
	FailedPRs             int
	AvgTimeToFirstReview  *float64
	AvgTimeToMerge        *float64
	AvgCommitLeadTime     *float64
}

// AnalysisResult is the full output of a lifecycle analysis run.
type AnalysisResult struct {
	Summary AnalysisSummary
	Details []PRDetail
}
