package domain

import "time"

// User identifies a GitHub user account.
type User struct {
	ID    int64
	Login string
	Name  string
}

// Team identifies a GitHub team by its URL-friendly slug.
type Team struct {
	Slug string
	Name string
}

// Repository holds basic repository metadata used for access validation.
type Repository struct {
	Name          string
	FullName      string
	Private       bool
	DefaultBranch string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PullRequest is the listing-level view of a pull request. It is the unit of
// batching; the composite fetch fills in the rest of the data.
type PullRequest struct {
	Number             int
	Title              string
	State              string
	Draft              bool
	CreatedAt          time.Time
	MergedAt           *time.Time
	User               *User
	RequestedReviewers []User
	RequestedTeams     []Team
}

// Review is a submitted pull request review.
type Review struct {
	ID          int64
	State       string // APPROVED, CHANGES_REQUESTED, COMMENTED
	User        *User
	SubmittedAt time.Time
}

// ReviewComment is an inline comment attached to a review.
type ReviewComment struct {
	ID        int64
	ReviewID  int64
	User      *User
	CreatedAt time.Time
}

// TimelineEvent is one event from the issue timeline of a pull request.
type TimelineEvent struct {
	Event     string
	Actor     *User
	CreatedAt time.Time
}

// Commit is one commit belonging to a pull request.
type Commit struct {
	SHA           string
	AuthorDate    *time.Time
	CommitterDate *time.Time
}

// MergeInfo describes how and when a merged pull request landed. Nil merge
// info on a bundle means the PR has not been merged.
type MergeInfo struct {
	MergedAt       time.Time
	MergedBy       *User
	MergeCommitSHA string
}
