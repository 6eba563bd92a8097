package domain

import "time"

// Workload status values assigned by overload detection.
const (
	WorkloadOverloaded = "OVERLOADED"
	WorkloadHigh       = "HIGH"
	WorkloadNormal     = "NORMAL"
)

// ReviewerLoad aggregates review requests for one reviewer across PRs.
type ReviewerLoad struct {
	Login            string
	Name             string
	TotalRequests    int
	PRNumbers        []int
	RequestSources   []string // "individual" or "team:<slug>"
	FirstRequestDate *time.Time
	LastRequestDate  *time.Time
}

// IsTeam reports whether the entry is an unexpanded team placeholder.
func (r *ReviewerLoad) IsTeam() bool {
	return len(r.Login) > 5 && r.Login[:5] == "team:"
}

// WorkloadStatistics summarizes the request-count distribution.
type WorkloadStatistics struct {
	TotalReviewers int
	TotalRequests  int
	Mean           float64
	Median         float64
	StdDev         float64
	Min            int
	Max            int
	P75            float64
	P90            float64
	P95            float64
}

// OverloadReport buckets reviewer logins by workload status.
type OverloadReport struct {
	Overloaded []string
	High       []string
	Normal     []string
	Threshold  int
}

// StatusFor returns the workload status assigned to a login.
func (o *OverloadReport) StatusFor(login string) string {
	for _, l := range o.Overloaded {
		if l == login {
			return WorkloadOverloaded
		}
	}
	for _, l := range o.High {
		if l == login {
			return WorkloadHigh
		}
	}
	return WorkloadNormal
}

// RankedReviewer is one entry of the top-reviewers list.
type RankedReviewer struct {
	Login             string
	Name              string
	TotalRequests     int
	PercentageOfTotal float64
}

// DistributionReport describes concentration patterns in review requests.
type DistributionReport struct {
	ConcentrationRatio float64 // share of requests handled by the top 20%
	GiniCoefficient    float64
	TopReviewers       []RankedReviewer
	Underutilized      []RankedReviewer
	DiversityScore     float64
}

// WorkloadSummary is the full output of a reviewer workload analysis.
type WorkloadSummary struct {
	AnalyzedAt    time.Time
	Repository    string
	TotalPRs      int
	IncludeTeams  bool
	Threshold     int
	Reviewers     map[string]*ReviewerLoad
	Statistics    WorkloadStatistics
	Overload      OverloadReport
	Distribution  DistributionReport
	DegradedTeams []string
}
