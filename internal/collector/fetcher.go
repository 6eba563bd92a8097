package collector

import (
	"context"

	"go.uber.org/zap"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

// PRFetcher performs the composite fetch for a single pull request: a fixed
// fan-out of sub-calls whose partial-failure semantics decide the item's
// fate. Reviews, merge metadata and commits are required; review comments,
// timeline and reviewer-request state only degrade the item when missing.
type PRFetcher struct {
	api    GitHubAPI
	teams  *TeamExpander
	owner  string
	repo   string
	logger *zap.Logger

	includeReviewers bool
	expandTeams      bool
}

// FetcherOption configures optional fetch behavior.
type FetcherOption func(*PRFetcher)

// WithReviewerRequests enables fetching the current reviewer-request state
// for each item, expanding team references when expandTeams is set.
func WithReviewerRequests(expandTeams bool) FetcherOption {
	return func(f *PRFetcher) {
		f.includeReviewers = true
		f.expandTeams = expandTeams
	}
}

// NewPRFetcher creates a composite fetcher for one repository.
func NewPRFetcher(api GitHubAPI, teams *TeamExpander, owner, repo string, logger *zap.Logger, opts ...FetcherOption) *PRFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &PRFetcher{
		api:    api,
		teams:  teams,
		owner:  owner,
		repo:   repo,
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CallsPerItem returns the expected API cost of one item: the five fixed
// sub-calls, plus the reviewer-request call and an estimated team-expansion
// call when reviewer analysis is enabled.
func (f *PRFetcher) CallsPerItem() int {
	if f.includeReviewers {
		return 7
	}
	return 5
}

// FetchPR assembles the aggregate record for one pull request. It never
// returns a bare error: the outcome is the tagged status on the bundle, so
// one bad item cannot abort a whole run.
func (f *PRFetcher) FetchPR(ctx context.Context, pr *domain.PullRequest) *domain.PRBundle {
	bundle := &domain.PRBundle{PR: pr, Status: domain.FetchComplete}
	number := pr.Number

	var err error

	// Required: reviews. A failure here makes the item unusable, so the
	// remaining sub-calls are skipped.
	bundle.Reviews, err = f.api.ListReviews(ctx, f.owner, f.repo, number)
	if err != nil {
		return f.fail(bundle, domain.PartReviews, err)
	}

	// Optional: inline review comments.
	bundle.ReviewComments, err = f.api.ListReviewComments(ctx, f.owner, f.repo, number)
	if err != nil {
		f.degrade(bundle, domain.PartReviewComments, err)
	}

	// Optional: issue timeline.
	bundle.Timeline, err = f.api.ListTimeline(ctx, f.owner, f.repo, number)
	if err != nil {
		f.degrade(bundle, domain.PartTimeline, err)
	}

	// Required: merge metadata.
	bundle.MergeInfo, err = f.api.PRMergeInfo(ctx, f.owner, f.repo, number)
	if err != nil {
		return f.fail(bundle, domain.PartMergeInfo, err)
	}

	// Required: commits.
	bundle.Commits, err = f.api.ListCommits(ctx, f.owner, f.repo, number)
	if err != nil {
		return f.fail(bundle, domain.PartCommits, err)
	}

	if f.includeReviewers {
		bundle.Reviewers = f.fetchReviewers(ctx, bundle, pr)
	}

	return bundle
}

// fetchReviewers resolves the item's reviewer-request set. The live request
// state is preferred; on failure the listing-level data stands in and the
// item degrades to partial.
func (f *PRFetcher) fetchReviewers(ctx context.Context, bundle *domain.PRBundle, pr *domain.PullRequest) *domain.ReviewerRequestSet {
	set := domain.NewReviewerRequestSet()

	users, teams, err := f.api.ListRequestedReviewers(ctx, f.owner, f.repo, pr.Number)
	if err != nil {
		f.degrade(bundle, domain.PartReviewers, err)
		users = pr.RequestedReviewers
		teams = pr.RequestedTeams
	}

	for _, u := range users {
		set.Add(u, "individual")
	}

	for _, team := range teams {
		if team.Slug == "" {
			continue
		}
		if !f.expandTeams {
			set.AddTeamPlaceholder(team.Slug)
			continue
		}
		members, err := f.teams.Expand(ctx, team.Slug)
		if err != nil {
			set.MarkTeamDegraded(team.Slug)
			f.degrade(bundle, "team:"+team.Slug, err)
			continue
		}
		for _, m := range members {
			set.Add(m, "team:"+team.Slug)
		}
	}

	return set
}

func (f *PRFetcher) fail(bundle *domain.PRBundle, part string, err error) *domain.PRBundle {
	f.logger.Warn("required sub-call failed, item unusable",
		zap.Int("pr", bundle.PR.Number), zap.String("part", part), zap.Error(err))
	bundle.Status = domain.FetchFailed
	bundle.Missing = append(bundle.Missing, part)
	bundle.Err = err
	return bundle
}

func (f *PRFetcher) degrade(bundle *domain.PRBundle, part string, err error) {
	f.logger.Warn("optional sub-call failed, item degraded",
		zap.Int("pr", bundle.PR.Number), zap.String("part", part), zap.Error(err))
	if bundle.Status == domain.FetchComplete {
		bundle.Status = domain.FetchPartial
	}
	bundle.Missing = append(bundle.Missing, part)
}
