package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/reviewflow/internal/domain/model"
)

// ReviewStore defines the driven port for persisting reviewer assignments.
//
// The store -- not the caller -- is responsible for the invariant that at most
// one outstanding (completed_at IS NULL) row exists per (repo, PR, reviewer)
// tuple, so that concurrent or duplicate webhook deliveries cannot create
// duplicates.
type ReviewStore interface {
	// CreateOutstanding inserts an outstanding review request. It reports
	// false when an outstanding row for the same (repo, PR, reviewer)
	// already exists.
	CreateOutstanding(ctx context.Context, review model.Review) (bool, error)

	// Complete marks the outstanding review for (repo, PR, reviewer) as
	// completed. It reports false when no outstanding row matched.
	Complete(ctx context.Context, repoFullName string, number int, reviewer string, completedAt time.Time, reviewURL string) (bool, error)

	// CompleteAllByPR force-completes every outstanding review on a PR.
	// Used by startup sync when a remote PR turns out to be closed.
	CompleteAllByPR(ctx context.Context, repoFullName string, number int, completedAt time.Time) (int, error)

	// DeleteOutstandingByPR removes every outstanding review on a PR without
	// marking it complete. Used when a PR closes or converts to draft.
	DeleteOutstandingByPR(ctx context.Context, repoFullName string, number int) (int, error)

	// DeleteOutstanding removes a single reviewer's outstanding review on a
	// PR. It reports false when no outstanding row matched. Used when a
	// reviewer request is withdrawn.
	DeleteOutstanding(ctx context.Context, repoFullName string, number int, reviewer string) (bool, error)

	ListByPR(ctx context.Context, repoFullName string, number int) ([]model.Review, error)
	ListOutstandingByPR(ctx context.Context, repoFullName string, number int) ([]model.Review, error)

	// ListOutstandingNeedingReminder returns outstanding reviews whose last
	// reminder (or request time, if never reminded) is at or before the
	// cutoff, oldest first.
	ListOutstandingNeedingReminder(ctx context.Context, cutoff time.Time) ([]model.Review, error)

	// MarkReminded bumps the review's reminder count and stamps the time.
	MarkReminded(ctx context.Context, id int64, at time.Time) error

	// WorkloadSince returns, per reviewer, the number of distinct PRs with a
	// review completed at or after the given instant. Reviewers with no
	// completed reviews are absent from the map.
	WorkloadSince(ctx context.Context, since time.Time) (map[string]int, error)

	// CountAll returns the total number of review rows, completed or not.
	CountAll(ctx context.Context) (int, error)
}
