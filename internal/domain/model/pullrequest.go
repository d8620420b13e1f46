package model

import "time"

// PullRequest is the local review-lifecycle record for a pull request in a
// managed repository. Its identity is the (RepoFullName, Number) pair; the
// database ID is an implementation detail of the store.
type PullRequest struct {
	ID           int64
	RepoFullName string
	Number       int
	Title        string
	Author       string
	Status       PRStatus
	CreatedAt    time.Time

	// StatusCommentID is the GitHub comment ID of the single externally
	// visible status comment. Nil until the first comment is posted.
	StatusCommentID *int64

	LastReminderAt *time.Time
	ReminderCount  int
}

// Age returns the elapsed time since the PR was first tracked.
func (pr PullRequest) Age(now time.Time) time.Duration {
	return now.Sub(pr.CreatedAt)
}
