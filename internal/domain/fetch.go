package domain

import (
	"sort"
	"time"
)

// QuotaState is a snapshot of the server-reported API budget. It is replaced
// atomically after every response and never partially updated.
type QuotaState struct {
	Limit      int
	Remaining  int
	ResetAt    time.Time
	ObservedAt time.Time
}

// UntilReset returns how long until the budget is replenished, measured from
// the given time. Never negative.
func (q QuotaState) UntilReset(now time.Time) time.Duration {
	if d := q.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// FetchStatus is the per-item outcome of a composite fetch.
type FetchStatus string

const (
	// FetchComplete means every sub-call for the item succeeded.
	FetchComplete FetchStatus = "complete"
	// FetchPartial means required data is complete but one or more optional
	// sub-calls failed; the missing parts are listed on the bundle.
	FetchPartial FetchStatus = "partial"
	// FetchFailed means a required sub-call was exhausted or fatal; the item
	// carries no usable data.
	FetchFailed FetchStatus = "failed"
)

// Sub-call part names recorded in PRBundle.Missing.
const (
	PartReviews        = "reviews"
	PartReviewComments = "review_comments"
	PartTimeline       = "timeline"
	PartMergeInfo      = "merge_info"
	PartCommits        = "commits"
	PartReviewers      = "reviewers"
)

// ReviewerRequestSet holds the individual and team reviewer requests for one
// pull request, with team members already expanded. Each login appears at
// most once regardless of how many teams resolved to it.
type ReviewerRequestSet struct {
	byLogin map[string]reviewerRequest
	// DegradedTeams lists slugs whose membership could not be resolved; each
	// is retained in the set as an opaque "team:<slug>" member.
	DegradedTeams []string
}

type reviewerRequest struct {
	user    User
	sources []string
}

// NewReviewerRequestSet returns an empty request set.
func NewReviewerRequestSet() *ReviewerRequestSet {
	return &ReviewerRequestSet{byLogin: make(map[string]reviewerRequest)}
}

// Add records a reviewer request from the given source ("individual" or
// "team:<slug>"). Duplicate logins accumulate sources but appear once.
func (s *ReviewerRequestSet) Add(user User, source string) {
	if user.Login == "" {
		return
	}
	req, ok := s.byLogin[user.Login]
	if !ok {
		req = reviewerRequest{user: user}
	}
	req.sources = append(req.sources, source)
	s.byLogin[user.Login] = req
}

// AddTeamPlaceholder keeps a team in the set as an opaque unit, used when
// expansion is disabled or impossible.
func (s *ReviewerRequestSet) AddTeamPlaceholder(slug string) {
	login := "team:" + slug
	s.Add(User{Login: login, Name: "Team: " + slug}, "team:"+slug)
}

// MarkTeamDegraded records that the team could not be expanded and keeps the
// team itself as a placeholder member.
func (s *ReviewerRequestSet) MarkTeamDegraded(slug string) {
	s.DegradedTeams = append(s.DegradedTeams, slug)
	s.AddTeamPlaceholder(slug)
}

// Logins returns the deduplicated reviewer logins in sorted order.
func (s *ReviewerRequestSet) Logins() []string {
	logins := make([]string, 0, len(s.byLogin))
	for login := range s.byLogin {
		logins = append(logins, login)
	}
	sort.Strings(logins)
	return logins
}

// Users returns the deduplicated reviewers, sorted by login.
func (s *ReviewerRequestSet) Users() []User {
	users := make([]User, 0, len(s.byLogin))
	for _, login := range s.Logins() {
		users = append(users, s.byLogin[login].user)
	}
	return users
}

// Sources returns the request sources recorded for a login.
func (s *ReviewerRequestSet) Sources(login string) []string {
	return s.byLogin[login].sources
}

// Len returns the number of distinct reviewers in the set.
func (s *ReviewerRequestSet) Len() int {
	return len(s.byLogin)
}

// PRBundle is the aggregated result of the composite fetch for one pull
// request. It is built by exactly one fetch path and never mutated after
// being handed to the caller.
type PRBundle struct {
	PR             *PullRequest
	Reviews        []Review
	ReviewComments []ReviewComment
	Timeline       []TimelineEvent
	MergeInfo      *MergeInfo
	Commits        []Commit
	Reviewers      *ReviewerRequestSet

	Status  FetchStatus
	Missing []string // optional parts absent from a partial bundle
	Err     error    // cause, set only when Status is FetchFailed
}

// Number returns the pull request number the bundle describes.
func (b *PRBundle) Number() int {
	return b.PR.Number
}

// Usable reports whether the bundle carries analyzable data. Failed items
// must be treated as absent from aggregates, not as zero-valued.
func (b *PRBundle) Usable() bool {
	return b.Status != FetchFailed
}

// Progress is the cumulative state reported to the progress observer after
// each batch. Advisory only.
type Progress struct {
	BatchIndex   int
	TotalBatches int
	Completed    int
	Partial      int
	Failed       int
	Quota        QuotaState
}
