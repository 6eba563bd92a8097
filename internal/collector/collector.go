package collector

import (
	"context"
	"time"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

// GitHubAPI is the set of GitHub operations the fetch layer depends on.
// *GitHubCollector is the production implementation; tests substitute fakes.
type GitHubAPI interface {
	GetRepository(ctx context.Context, owner, repo string) (*domain.Repository, error)
	ListPullRequests(ctx context.Context, owner, repo string, since time.Time) ([]*domain.PullRequest, error)
	PRMergeInfo(ctx context.Context, owner, repo string, number int) (*domain.MergeInfo, error)
	ListReviews(ctx context.Context, owner, repo string, number int) ([]domain.Review, error)
	ListReviewComments(ctx context.Context, owner, repo string, number int) ([]domain.ReviewComment, error)
	ListTimeline(ctx context.Context, owner, repo string, number int) ([]domain.TimelineEvent, error)
	ListCommits(ctx context.Context, owner, repo string, number int) ([]domain.Commit, error)
	ListRequestedReviewers(ctx context.Context, owner, repo string, number int) ([]domain.User, []domain.Team, error)
	ListTeamMembers(ctx context.Context, org, slug string) ([]domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	RateLimit(ctx context.Context) (domain.QuotaState, error)
}

// ItemFetcher assembles the aggregate record for one pull request.
type ItemFetcher interface {
	FetchPR(ctx context.Context, pr *domain.PullRequest) *domain.PRBundle
	// CallsPerItem is the number of API calls one item is expected to cost,
	// used for the pre-batch quota check.
	CallsPerItem() int
}

// ProgressFunc receives cumulative progress after each batch. Advisory only.
type ProgressFunc func(p domain.Progress)
