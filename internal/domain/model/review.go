package model

import "time"

// Review represents one requested reviewer assignment on a pull request --
// not only a completed approval. A nil CompletedAt means the request is still
// outstanding. The store enforces that at most one outstanding Review exists
// per (repo, PR, reviewer) tuple.
type Review struct {
	ID           int64
	RepoFullName string
	PRNumber     int
	Reviewer     string
	RequestedAt  time.Time
	CompletedAt  *time.Time
	ReviewURL    string

	LastReminderAt *time.Time
	ReminderCount  int
}

// Outstanding reports whether the review request is still awaiting completion.
func (r Review) Outstanding() bool {
	return r.CompletedAt == nil
}

// ReminderDueSince returns the instant from which the reminder threshold is
// measured: the last reminder if one was sent, otherwise the request time.
func (r Review) ReminderDueSince() time.Time {
	if r.LastReminderAt != nil {
		return *r.LastReminderAt
	}
	return r.RequestedAt
}
