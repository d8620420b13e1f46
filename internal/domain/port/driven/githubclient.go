package driven

import (
	"context"

	"github.com/ericfisherdev/reviewflow/internal/domain/model"
)

// GitHubClient defines the driven port for the code-host collaborator. The
// lifecycle engine only ever talks to the code host through this interface;
// every call is a network operation and may fail without affecting local state.
type GitHubClient interface {
	// CreateComment posts a PR-level comment and returns its comment ID.
	CreateComment(ctx context.Context, repoFullName string, number int, body string) (int64, error)
	// UpdateComment replaces the body of an existing PR-level comment.
	UpdateComment(ctx context.Context, repoFullName string, commentID int64, body string) error
	ListComments(ctx context.Context, repoFullName string, number int) ([]model.IssueComment, error)
	ListReviewComments(ctx context.Context, repoFullName string, number int) ([]model.ReviewComment, error)

	// RequestReviewers asks the code host to request reviews from the given
	// users on the PR.
	RequestReviewers(ctx context.Context, repoFullName string, number int, reviewers []string) error
	ListCollaborators(ctx context.Context, repoFullName string) ([]string, error)

	FetchPullRequest(ctx context.Context, repoFullName string, number int) (*model.RemotePullRequest, error)
	// FetchPullRequests lists PRs filtered by state ("open", "closed", or
	// "all" as accepted by the API). Used by startup sync.
	FetchPullRequests(ctx context.Context, repoFullName string, state string) ([]model.RemotePullRequest, error)
}
