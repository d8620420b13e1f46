package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/reviewflow/internal/domain/model"
)

// PRStore defines the driven port for pull request persistence.
type PRStore interface {
	// Create inserts a new pull request record. It reports false when a
	// record for the same (repo, number) already exists, making duplicate
	// "opened" deliveries a no-op.
	Create(ctx context.Context, pr model.PullRequest) (bool, error)

	// GetByNumber retrieves a single pull request by repository and number.
	// Returns nil, nil if the pull request is not tracked.
	GetByNumber(ctx context.Context, repoFullName string, number int) (*model.PullRequest, error)

	UpdateStatus(ctx context.Context, repoFullName string, number int, status model.PRStatus) error
	SetStatusCommentID(ctx context.Context, repoFullName string, number int, commentID int64) error

	// MarkReminded bumps the PR's reminder count and stamps the reminder time.
	MarkReminded(ctx context.Context, repoFullName string, number int, at time.Time) error

	// ListStalePendingChoice returns PRs in pending_reviewer_choice created
	// at or before the cutoff, oldest first. Used by the auto-assign sweep.
	ListStalePendingChoice(ctx context.Context, cutoff time.Time) ([]model.PullRequest, error)

	ListByRepository(ctx context.Context, repoFullName string) ([]model.PullRequest, error)

	// ListByStatus returns all PRs in the given status, oldest first.
	ListByStatus(ctx context.Context, status model.PRStatus) ([]model.PullRequest, error)

	// CountActive returns the number of PRs whose status is not closed.
	CountActive(ctx context.Context) (int, error)
}
