package model

import "time"

// RemotePullRequest is a pull request as reported by the code host. It carries
// only the fields the lifecycle engine needs; the adapter maps the provider's
// types into this shape.
type RemotePullRequest struct {
	Number             int
	Title              string
	Author             string
	State              string // "open" or "closed" as reported by the API.
	Draft              bool
	RequestedReviewers []string
	URL                string
	CreatedAt          time.Time
}

// IssueComment is a PR-level (non-diff) comment as reported by the code host.
type IssueComment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

// ReviewComment is an inline review comment as reported by the code host.
// InReplyToID is nil for top-level comments and set for thread replies.
type ReviewComment struct {
	ID          int64
	ReviewID    int64
	Author      string
	InReplyToID *int64
	CreatedAt   time.Time
}
