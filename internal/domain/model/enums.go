package model

// PRStatus is the closed set of lifecycle states for a tracked pull request.
// Storing a closed enum (rather than a free-form string) makes invalid states
// unrepresentable.
type PRStatus string

const (
	// PRStatusPendingReviewerChoice means the PR is open and waiting for the
	// author (or the auto-assign sweep) to choose a reviewer.
	PRStatusPendingReviewerChoice PRStatus = "pending_reviewer_choice"
	// PRStatusDraft means the PR is a draft and not yet up for review.
	PRStatusDraft PRStatus = "draft"
	// PRStatusPendingReview means at least one reviewer has been requested.
	PRStatusPendingReview PRStatus = "pending_review"
	// PRStatusReviewed means a substantive review has been submitted.
	PRStatusReviewed PRStatus = "reviewed"
	// PRStatusClosed is the terminal state; closed PRs are never reopened
	// locally and never hard-deleted.
	PRStatusClosed PRStatus = "closed"
)

// Terminal reports whether the status is a terminal state.
func (s PRStatus) Terminal() bool {
	return s == PRStatusClosed
}
