package reviewer

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

// Analyzer aggregates review request load across pull requests and flags
// reviewers carrying more than their share.
type Analyzer struct {
	threshold int
	logger    *zap.Logger
}

// NewAnalyzer creates a workload analyzer. threshold is the request count at
// which a reviewer is considered overloaded.
func NewAnalyzer(threshold int, logger *zap.Logger) *Analyzer {
	if threshold < 1 {
		threshold = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{threshold: threshold, logger: logger}
}

// Analyze builds the workload summary for the given bundles. Failed bundles
// carry no reviewer data and are skipped; team placeholders from degraded
// expansions are counted like reviewers and reported separately.
func (a *Analyzer) Analyze(repository string, bundles []*domain.PRBundle, includeTeams bool) *domain.WorkloadSummary {
	summary := &domain.WorkloadSummary{
		AnalyzedAt:   time.Now().UTC(),
		Repository:   repository,
		IncludeTeams: includeTeams,
		Threshold:    a.threshold,
		Reviewers:    make(map[string]*domain.ReviewerLoad),
	}

	degraded := make(map[string]struct{})
	for _, b := range bundles {
		if b == nil || b.PR == nil || b.Status == domain.FetchFailed {
			continue
		}
		summary.TotalPRs++
		if b.Reviewers == nil {
			continue
		}
		a.accumulate(summary.Reviewers, b)
		for _, slug := range b.Reviewers.DegradedTeams {
			degraded[slug] = struct{}{}
		}
	}
	summary.DegradedTeams = sortedKeys(degraded)

	loads := sortedLoads(summary.Reviewers)
	summary.Statistics = computeStatistics(loads)
	summary.Overload = a.detectOverload(loads)
	summary.Distribution = computeDistribution(loads)

	a.logger.Info("reviewer workload analysis complete",
		zap.String("repository", repository),
		zap.Int("prs", summary.TotalPRs),
		zap.Int("reviewers", summary.Statistics.TotalReviewers),
		zap.Int("overloaded", len(summary.Overload.Overloaded)))
	return summary
}

func (a *Analyzer) accumulate(loads map[string]*domain.ReviewerLoad, b *domain.PRBundle) {
	users := b.Reviewers.Users()
	for _, u := range users {
		load, ok := loads[u.Login]
		if !ok {
			load = &domain.ReviewerLoad{Login: u.Login, Name: u.Name}
			loads[u.Login] = load
		}
		if load.Name == "" && u.Name != "" {
			load.Name = u.Name
		}
		load.TotalRequests++
		load.PRNumbers = append(load.PRNumbers, b.PR.Number)
		for _, src := range b.Reviewers.Sources(u.Login) {
			if !contains(load.RequestSources, src) {
				load.RequestSources = append(load.RequestSources, src)
			}
		}
		created := b.PR.CreatedAt
		if load.FirstRequestDate == nil || created.Before(*load.FirstRequestDate) {
			t := created
			load.FirstRequestDate = &t
		}
		if load.LastRequestDate == nil || created.After(*load.LastRequestDate) {
			t := created
			load.LastRequestDate = &t
		}
	}
}

func (a *Analyzer) detectOverload(loads []*domain.ReviewerLoad) domain.OverloadReport {
	report := domain.OverloadReport{Threshold: a.threshold}
	high := int(math.Ceil(float64(a.threshold) * 0.75))
	for _, l := range loads {
		switch {
		case l.TotalRequests >= a.threshold:
			report.Overloaded = append(report.Overloaded, l.Login)
		case l.TotalRequests >= high:
			report.High = append(report.High, l.Login)
		default:
			report.Normal = append(report.Normal, l.Login)
		}
	}
	return report
}

func computeStatistics(loads []*domain.ReviewerLoad) domain.WorkloadStatistics {
	stats := domain.WorkloadStatistics{TotalReviewers: len(loads)}
	if len(loads) == 0 {
		return stats
	}

	counts := make([]float64, len(loads))
	for i, l := range loads {
		counts[i] = float64(l.TotalRequests)
		stats.TotalRequests += l.TotalRequests
	}
	sort.Float64s(counts)

	stats.Min = int(counts[0])
	stats.Max = int(counts[len(counts)-1])
	stats.Mean = round2(float64(stats.TotalRequests) / float64(len(counts)))
	stats.Median = round2(percentile(counts, 50))
	stats.P75 = round2(percentile(counts, 75))
	stats.P90 = round2(percentile(counts, 90))
	stats.P95 = round2(percentile(counts, 95))

	var variance float64
	mean := float64(stats.TotalRequests) / float64(len(counts))
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	stats.StdDev = round2(math.Sqrt(variance / float64(len(counts))))
	return stats
}

func computeDistribution(loads []*domain.ReviewerLoad) domain.DistributionReport {
	report := domain.DistributionReport{}
	if len(loads) == 0 {
		return report
	}

	var total int
	for _, l := range loads {
		total += l.TotalRequests
	}
	if total == 0 {
		return report
	}

	// loads arrives sorted by request count descending.
	topN := len(loads) / 5
	if topN < 1 {
		topN = 1
	}
	var topTotal int
	for _, l := range loads[:topN] {
		topTotal += l.TotalRequests
	}
	report.ConcentrationRatio = round2(float64(topTotal) / float64(total) * 100)

	report.GiniCoefficient = round2(gini(loads))
	report.DiversityScore = round2(math.Max(0, 1-gini(loads)))

	limit := 10
	if limit > len(loads) {
		limit = len(loads)
	}
	for _, l := range loads[:limit] {
		report.TopReviewers = append(report.TopReviewers, domain.RankedReviewer{
			Login:             l.Login,
			Name:              l.Name,
			TotalRequests:     l.TotalRequests,
			PercentageOfTotal: round2(float64(l.TotalRequests) / float64(total) * 100),
		})
	}

	avg := float64(total) / float64(len(loads))
	cutoff := math.Max(2, avg*0.25)
	for i := len(loads) - 1; i >= 0; i-- {
		l := loads[i]
		if float64(l.TotalRequests) > cutoff {
			continue
		}
		report.Underutilized = append(report.Underutilized, domain.RankedReviewer{
			Login:             l.Login,
			Name:              l.Name,
			TotalRequests:     l.TotalRequests,
			PercentageOfTotal: round2(float64(l.TotalRequests) / float64(total) * 100),
		})
	}
	return report
}

// gini computes the Gini coefficient of the request distribution:
// (2 * sum(i * x_i) / (n * sum(x_i))) - (n + 1) / n over the ascending sort,
// with 1-based ranks.
func gini(loads []*domain.ReviewerLoad) float64 {
	n := len(loads)
	counts := make([]float64, n)
	var total float64
	for i, l := range loads {
		counts[i] = float64(l.TotalRequests)
		total += counts[i]
	}
	if n < 2 || total == 0 {
		return 0
	}
	sort.Float64s(counts)
	var weighted float64
	for i, c := range counts {
		weighted += float64(i+1) * c
	}
	return (2*weighted)/(float64(n)*total) - float64(n+1)/float64(n)
}

// percentile interpolates linearly between closest ranks; xs must be sorted
// ascending.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if len(xs) == 1 {
		return xs[0]
	}
	rank := p / 100 * float64(len(xs)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return xs[lo]
	}
	return xs[lo] + (rank-float64(lo))*(xs[hi]-xs[lo])
}

// sortedLoads orders reviewers by request count descending, login ascending
// for ties.
func sortedLoads(loads map[string]*domain.ReviewerLoad) []*domain.ReviewerLoad {
	out := make([]*domain.ReviewerLoad, 0, len(loads))
	for _, l := range loads {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalRequests != out[j].TotalRequests {
			return out[i].TotalRequests > out[j].TotalRequests
		}
		return out[i].Login < out[j].Login
	})
	return out
}

// SortedLoads exposes the ranking used throughout this package for report
// rendering.
func SortedLoads(loads map[string]*domain.ReviewerLoad) []*domain.ReviewerLoad {
	return sortedLoads(loads)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
