package collector

import (
	"context"
	"time"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

// GitHubCollector wraps the GitHub REST API. Every page of every operation
// goes through the retrying caller, so quota state stays current and
// transient failures are absorbed before results reach the fetch layer.
type GitHubCollector struct {
	client *github.Client
	caller *Caller
	quota  *QuotaTracker
	logger *zap.Logger
}

// NewGitHubCollector creates a collector authenticated with the given token.
func NewGitHubCollector(token string, quota *QuotaTracker, caller *Caller, logger *zap.Logger) *GitHubCollector {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHubCollector{
		client: github.NewClient(tc),
		caller: caller,
		quota:  quota,
		logger: logger,
	}
}

// NewGitHubCollectorWithClient wires an existing go-github client, used by
// tests to point at a local server.
func NewGitHubCollectorWithClient(client *github.Client, quota *QuotaTracker, caller *Caller, logger *zap.Logger) *GitHubCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHubCollector{client: client, caller: caller, quota: quota, logger: logger}
}

// GetRepository validates repository access and returns its metadata.
func (c *GitHubCollector) GetRepository(ctx context.Context, owner, repo string) (*domain.Repository, error) {
	var out *domain.Repository
	err := c.caller.Do(ctx, "repository", func(ctx context.Context) (*github.Response, error) {
		r, resp, err := c.client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return resp, err
		}
		out = &domain.Repository{
			Name:          r.GetName(),
			FullName:      r.GetFullName(),
			Private:       r.GetPrivate(),
			DefaultBranch: r.GetDefaultBranch(),
			CreatedAt:     r.GetCreatedAt().Time,
			UpdatedAt:     r.GetUpdatedAt().Time,
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPullRequests fetches pull requests created since the given time,
// newest first. Pagination stops early once a page crosses the cutoff, since
// results are sorted by creation date descending.
func (c *GitHubCollector) ListPullRequests(ctx context.Context, owner, repo string, since time.Time) ([]*domain.PullRequest, error) {
	var all []*domain.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		var prs []*github.PullRequest
		var nextPage int
		err := c.caller.Do(ctx, "pull_requests", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			prs, resp, err = c.client.PullRequests.List(ctx, owner, repo, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, pr := range prs {
			if pr.GetCreatedAt().Time.Before(since) {
				// Sorted by created desc, everything after this is older.
				c.logger.Debug("reached pull requests older than cutoff, stopping pagination",
					zap.Time("since", since), zap.Int("collected", len(all)))
				return all, nil
			}
			all = append(all, convertPullRequest(pr))
		}

		if nextPage == 0 {
			break
		}
		opts.Page = nextPage
	}

	c.logger.Info("fetched pull requests",
		zap.String("repo", owner+"/"+repo), zap.Int("count", len(all)))
	return all, nil
}

// PRMergeInfo fetches the PR detail and extracts merge metadata. Returns nil
// info (no error) when the PR has not been merged.
func (c *GitHubCollector) PRMergeInfo(ctx context.Context, owner, repo string, number int) (*domain.MergeInfo, error) {
	var out *domain.MergeInfo
	err := c.caller.Do(ctx, "merge_info", func(ctx context.Context) (*github.Response, error) {
		pr, resp, err := c.client.PullRequests.Get(ctx, owner, repo, number)
		if err != nil {
			return resp, err
		}
		if pr.MergedAt == nil {
			out = nil
			return resp, nil
		}
		out = &domain.MergeInfo{
			MergedAt:       pr.GetMergedAt().Time,
			MergedBy:       convertUser(pr.MergedBy),
			MergeCommitSHA: pr.GetMergeCommitSHA(),
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListReviews fetches all submitted reviews for a pull request.
func (c *GitHubCollector) ListReviews(ctx context.Context, owner, repo string, number int) ([]domain.Review, error) {
	var all []domain.Review
	opts := &github.ListOptions{PerPage: 100}

	for {
		var page []*github.PullRequestReview
		var nextPage int
		err := c.caller.Do(ctx, "reviews", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = c.client.PullRequests.ListReviews(ctx, owner, repo, number, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			all = append(all, domain.Review{
				ID:          r.GetID(),
				State:       r.GetState(),
				User:        convertUser(r.User),
				SubmittedAt: r.GetSubmittedAt().Time,
			})
		}
		if nextPage == 0 {
			break
		}
		opts.Page = nextPage
	}
	return all, nil
}

// ListReviewComments fetches the inline review comments for a pull request.
func (c *GitHubCollector) ListReviewComments(ctx context.Context, owner, repo string, number int) ([]domain.ReviewComment, error) {
	var all []domain.ReviewComment
	opts := &github.PullRequestListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		var page []*github.PullRequestComment
		var nextPage int
		err := c.caller.Do(ctx, "review_comments", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = c.client.PullRequests.ListComments(ctx, owner, repo, number, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, cm := range page {
			all = append(all, domain.ReviewComment{
				ID:        cm.GetID(),
				ReviewID:  cm.GetPullRequestReviewID(),
				User:      convertUser(cm.User),
				CreatedAt: cm.GetCreatedAt().Time,
			})
		}
		if nextPage == 0 {
			break
		}
		opts.ListOptions.Page = nextPage
	}
	return all, nil
}

// ListTimeline fetches the issue timeline events for a pull request.
func (c *GitHubCollector) ListTimeline(ctx context.Context, owner, repo string, number int) ([]domain.TimelineEvent, error) {
	var all []domain.TimelineEvent
	opts := &github.ListOptions{PerPage: 100}

	for {
		var page []*github.Timeline
		var nextPage int
		err := c.caller.Do(ctx, "timeline", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = c.client.Issues.ListIssueTimeline(ctx, owner, repo, number, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, ev := range page {
			all = append(all, domain.TimelineEvent{
				Event:     ev.GetEvent(),
				Actor:     convertUser(ev.Actor),
				CreatedAt: ev.GetCreatedAt().Time,
			})
		}
		if nextPage == 0 {
			break
		}
		opts.Page = nextPage
	}
	return all, nil
}

// ListCommits fetches the commits belonging to a pull request.
func (c *GitHubCollector) ListCommits(ctx context.Context, owner, repo string, number int) ([]domain.Commit, error) {
	var all []domain.Commit
	opts := &github.ListOptions{PerPage: 100}

	for {
		var page []*github.RepositoryCommit
		var nextPage int
		err := c.caller.Do(ctx, "commits", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = c.client.PullRequests.ListCommits(ctx, owner, repo, number, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, rc := range page {
			commit := domain.Commit{SHA: rc.GetSHA()}
			if gc := rc.GetCommit(); gc != nil {
				if a := gc.GetAuthor(); a != nil && a.Date != nil {
					t := a.GetDate().Time
					commit.AuthorDate = &t
				}
				if cm := gc.GetCommitter(); cm != nil && cm.Date != nil {
					t := cm.GetDate().Time
					commit.CommitterDate = &t
				}
			}
			all = append(all, commit)
		}
		if nextPage == 0 {
			break
		}
		opts.Page = nextPage
	}
	return all, nil
}

// ListRequestedReviewers fetches the current requested reviewers and teams
// for a pull request.
func (c *GitHubCollector) ListRequestedReviewers(ctx context.Context, owner, repo string, number int) ([]domain.User, []domain.Team, error) {
	var users []domain.User
	var teams []domain.Team
	err := c.caller.Do(ctx, "requested_reviewers", func(ctx context.Context) (*github.Response, error) {
		reviewers, resp, err := c.client.PullRequests.ListReviewers(ctx, owner, repo, number, nil)
		if err != nil {
			return resp, err
		}
		users = users[:0]
		teams = teams[:0]
		for _, u := range reviewers.Users {
			if cu := convertUser(u); cu != nil {
				users = append(users, *cu)
			}
		}
		for _, t := range reviewers.Teams {
			teams = append(teams, domain.Team{Slug: t.GetSlug(), Name: t.GetName()})
		}
		return resp, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return users, teams, nil
}

// ListTeamMembers fetches the members of an organization team by slug.
func (c *GitHubCollector) ListTeamMembers(ctx context.Context, org, slug string) ([]domain.User, error) {
	var all []domain.User
	opts := &github.TeamListTeamMembersOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		var page []*github.User
		var nextPage int
		err := c.caller.Do(ctx, "team_members", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = c.client.Teams.ListTeamMembersBySlug(ctx, org, slug, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, u := range page {
			if cu := convertUser(u); cu != nil {
				all = append(all, *cu)
			}
		}
		if nextPage == 0 {
			break
		}
		opts.Page = nextPage
	}
	return all, nil
}

// GetUserByID resolves a GitHub user ID to account information.
func (c *GitHubCollector) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := c.caller.Do(ctx, "user_by_id", func(ctx context.Context) (*github.Response, error) {
		u, resp, err := c.client.Users.GetByID(ctx, id)
		if err != nil {
			return resp, err
		}
		out = convertUser(u)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RateLimit performs the one lightweight call used by the quota-check mode.
// The dedicated endpoint does not itself consume budget.
func (c *GitHubCollector) RateLimit(ctx context.Context) (domain.QuotaState, error) {
	var out domain.QuotaState
	err := c.caller.Do(ctx, "rate_limit", func(ctx context.Context) (*github.Response, error) {
		limits, resp, err := c.client.RateLimits(ctx)
		if err != nil {
			return resp, err
		}
		core := limits.GetCore()
		out = domain.QuotaState{
			Limit:      core.Limit,
			Remaining:  core.Remaining,
			ResetAt:    core.Reset.Time,
			ObservedAt: time.Now(),
		}
		return resp, nil
	})
	if err != nil {
		return domain.QuotaState{}, err
	}
	return out, nil
}

func convertUser(u *github.User) *domain.User {
	if u == nil {
		return nil
	}
	return &domain.User{
		ID:    u.GetID(),
		Login: u.GetLogin(),
		Name:  u.GetName(),
	}
}

func convertPullRequest(pr *github.PullRequest) *domain.PullRequest {
	out := &domain.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		State:     pr.GetState(),
		Draft:     pr.GetDraft(),
		CreatedAt: pr.GetCreatedAt().Time,
		User:      convertUser(pr.User),
	}
	if pr.MergedAt != nil {
		t := pr.GetMergedAt().Time
		out.MergedAt = &t
	}
	for _, u := range pr.RequestedReviewers {
		if cu := convertUser(u); cu != nil {
			out.RequestedReviewers = append(out.RequestedReviewers, *cu)
		}
	}
	for _, t := range pr.RequestedTeams {
		out.RequestedTeams = append(out.RequestedTeams, domain.Team{Slug: t.GetSlug(), Name: t.GetName()})
	}
	return out
}
