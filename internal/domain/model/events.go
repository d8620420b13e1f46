package model

import "time"

// Pull request event actions the lifecycle engine reacts to. Other actions
// are acknowledged and ignored.
const (
	ActionOpened               = "opened"
	ActionReadyForReview       = "ready_for_review"
	ActionConvertedToDraft     = "converted_to_draft"
	ActionReviewRequested      = "review_requested"
	ActionReviewRequestRemoved = "review_request_removed"
	ActionClosed               = "closed"
	ActionSubmitted            = "submitted"
)

// PullRequestEvent is a decoded pull_request webhook event. The driving
// adapter verifies the signature and maps the provider payload into this
// shape before handing it to the application layer.
type PullRequestEvent struct {
	Action            string
	RepoFullName      string
	PullRequest       RemotePullRequest
	RequestedReviewer string // set for review_requested / review_request_removed
}

// ReviewEvent is a decoded pull_request_review webhook event.
type ReviewEvent struct {
	Action       string
	RepoFullName string
	PRNumber     int
	PRAuthor     string
	Reviewer     string
	State        string // "approved", "changes_requested", or "commented"
	ReviewID     int64
	ReviewURL    string
	SubmittedAt  time.Time
}

// Stats is the read-only summary exposed by the stats endpoint.
type Stats struct {
	ActivePRs    int `json:"active_prs"`
	TotalReviews int `json:"total_reviews"`
}
