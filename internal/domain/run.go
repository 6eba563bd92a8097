package domain

import "time"

// Run modes stored with an analysis run.
const (
	RunModeLifecycle = "lifecycle"
	RunModeReviewers = "reviewers"
)

// AnalysisRun records one completed analysis for trend tracking.
type AnalysisRun struct {
	ID          string // uuid
	Owner       string
	Repo        string
	Mode        string
	Months      int
	StartedAt   time.Time
	CompletedAt time.Time
	TotalPRs    int
	Complete    int
	Partial     int
	Failed      int
	OutputPath  string
}

// FullName returns the owner/repo form of the analyzed repository.
func (r *AnalysisRun) FullName() string {
	return r.Owner + "/" + r.Repo
}
