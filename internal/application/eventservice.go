package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewflow/internal/config"
	"github.com/ericfisherdev/reviewflow/internal/domain/model"
	"github.com/ericfisherdev/reviewflow/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewflow/internal/domain/workhours"
)

// EventService advances the PR lifecycle in response to webhook events. It is
// safe under at-least-once, reordered, duplicate delivery: every mutation
// re-checks stored state first, and the store enforces uniqueness, so replays
// are no-ops. External side effects (comments, reviewer requests) run only
// after the local state change commits; their failures are logged, never
// rolled back into the local state.
type EventService struct {
	prStore     driven.PRStore
	reviewStore driven.ReviewStore
	ghClient    driven.GitHubClient
	calendar    *workhours.Calendar
	cfg         *config.Config
	now         func() time.Time
}

// NewEventService creates an EventService with all required dependencies.
func NewEventService(
	prStore driven.PRStore,
	reviewStore driven.ReviewStore,
	ghClient driven.GitHubClient,
	calendar *workhours.Calendar,
	cfg *config.Config,
) *EventService {
	return &EventService{
		prStore:     prStore,
		reviewStore: reviewStore,
		ghClient:    ghClient,
		calendar:    calendar,
		cfg:         cfg,
		now:         time.Now,
	}
}

// HandlePullRequest processes one pull_request event.
func (s *EventService) HandlePullRequest(ctx context.Context, ev model.PullRequestEvent) error {
	if !s.managed(ev.RepoFullName, ev.PullRequest.Number) {
		return nil
	}

	switch ev.Action {
	case model.ActionOpened:
		return s.handleOpened(ctx, ev)
	case model.ActionReadyForReview:
		return s.handleReadyForReview(ctx, ev)
	case model.ActionReviewRequested:
		return s.handleReviewRequested(ctx, ev)
	case model.ActionReviewRequestRemoved:
		return s.handleReviewRequestRemoved(ctx, ev)
	case model.ActionConvertedToDraft:
		return s.handleConvertedToDraft(ctx, ev)
	case model.ActionClosed:
		return s.handleClosed(ctx, ev)
	default:
		slog.Debug("ignoring pull request action",
			"repo", ev.RepoFullName, "pr", ev.PullRequest.Number, "action", ev.Action)
		return nil
	}
}

// managed reports whether the repository is configured and the PR number is
// at or above the repository's adoption floor.
func (s *EventService) managed(repoFullName string, number int) bool {
	repo := s.cfg.Repo(repoFullName)
	if repo == nil {
		slog.Debug("ignoring event for unmanaged repository", "repo", repoFullName)
		return false
	}
	if number < repo.MinPRNumber {
		slog.Debug("ignoring pre-adoption PR",
			"repo", repoFullName, "pr", number, "floor", repo.MinPRNumber)
		return false
	}
	return true
}

func (s *EventService) handleOpened(ctx context.Context, ev model.PullRequestEvent) error {
	status := model.PRStatusPendingReviewerChoice
	body := commentReviewerPrompt
	if ev.PullRequest.Draft {
		status = model.PRStatusDraft
		body = commentDraft
	}

	created, err := s.prStore.Create(ctx, model.PullRequest{
		RepoFullName: ev.RepoFullName,
		Number:       ev.PullRequest.Number,
		Title:        ev.PullRequest.Title,
		Author:       ev.PullRequest.Author,
		Status:       status,
		CreatedAt:    ev.PullRequest.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("track opened PR %s#%d: %w", ev.RepoFullName, ev.PullRequest.Number, err)
	}
	if !created {
		slog.Info("replayed opened event, PR already tracked",
			"repo", ev.RepoFullName, "pr", ev.PullRequest.Number)
		return nil
	}

	slog.Info("tracking new PR",
		"repo", ev.RepoFullName, "pr", ev.PullRequest.Number,
		"author", ev.PullRequest.Author, "status", string(status))

	s.postStatusComment(ctx, ev.RepoFullName, ev.PullRequest.Number, body)
	return nil
}

func (s *EventService) handleReadyForReview(ctx context.Context, ev model.PullRequestEvent) error {
	pr, err := s.prStore.GetByNumber(ctx, ev.RepoFullName, ev.PullRequest.Number)
	if err != nil {
		return err
	}
	if pr == nil {
		// The draft opened before we started tracking the repo. Treat ready
		// as a fresh open so the record self-heals.
		slog.Warn("ready_for_review for untracked PR, creating record",
			"repo", ev.RepoFullName, "pr", ev.PullRequest.Number)
		ev.PullRequest.Draft = false
		if err := s.handleOpened(ctx, ev); err != nil {
			return err
		}
		pr, err = s.prStore.GetByNumber(ctx, ev.RepoFullName, ev.PullRequest.Number)
		if err != nil || pr == nil {
			return err
		}
	}
	if pr.Status.Terminal() {
		return nil
	}

	// Reviewers requested while the PR was still a draft take effect now.
	requested := s.ensureOutstandingAll(ctx, pr, ev.PullRequest.RequestedReviewers)

	status := model.PRStatusPendingReviewerChoice
	body := commentReviewerPrompt
	if len(requested) > 0 {
		status = model.PRStatusPendingReview
		body = reviewInProgressComment(requested)
	}
	if err := s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, status); err != nil {
		return err
	}

	slog.Info("PR marked ready for review",
		"repo", pr.RepoFullName, "pr", pr.Number, "status", string(status))

	s.updateStatusComment(ctx, pr, body)
	return nil
}

func (s *EventService) handleReviewRequested(ctx context.Context, ev model.PullRequestEvent) error {
	pr, err := s.prStore.GetByNumber(ctx, ev.RepoFullName, ev.PullRequest.Number)
	if err != nil {
		return err
	}
	if pr == nil {
		slog.Warn("review_requested for untracked PR, skipping",
			"repo", ev.RepoFullName, "pr", ev.PullRequest.Number)
		return nil
	}
	if pr.Status.Terminal() {
		return nil
	}

	reviewer := ev.RequestedReviewer
	if reviewer == "" {
		slog.Warn("review_requested event without a reviewer",
			"repo", pr.RepoFullName, "pr", pr.Number)
		return nil
	}
	if strings.EqualFold(reviewer, pr.Author) {
		slog.Debug("ignoring self review request",
			"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", reviewer)
		return nil
	}

	created, err := s.reviewStore.CreateOutstanding(ctx, model.Review{
		RepoFullName: pr.RepoFullName,
		PRNumber:     pr.Number,
		Reviewer:     reviewer,
		RequestedAt:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("record review request %s#%d for %s: %w", pr.RepoFullName, pr.Number, reviewer, err)
	}
	if !created {
		slog.Info("replayed review_requested event, review already outstanding",
			"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", reviewer)
	}

	if err := s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusPendingReview); err != nil {
		return err
	}

	slog.Info("review requested",
		"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", reviewer)

	s.updateStatusComment(ctx, pr, reviewInProgressComment(s.outstandingReviewers(ctx, pr)))
	return nil
}

func (s *EventService) handleReviewRequestRemoved(ctx context.Context, ev model.PullRequestEvent) error {
	pr, err := s.prStore.GetByNumber(ctx, ev.RepoFullName, ev.PullRequest.Number)
	if err != nil {
		return err
	}
	if pr == nil || pr.Status.Terminal() {
		return nil
	}

	if ev.RequestedReviewer != "" {
		deleted, err := s.reviewStore.DeleteOutstanding(ctx, pr.RepoFullName, pr.Number, ev.RequestedReviewer)
		if err != nil {
			return err
		}
		if deleted {
			slog.Info("reviewer request withdrawn",
				"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", ev.RequestedReviewer)
		}
	}

	// Status stays as-is; the comment nudges the author to pick a replacement.
	s.updateStatusComment(ctx, pr, commentReviewerRemoved)
	return nil
}

func (s *EventService) handleConvertedToDraft(ctx context.Context, ev model.PullRequestEvent) error {
	pr, err := s.prStore.GetByNumber(ctx, ev.RepoFullName, ev.PullRequest.Number)
	if err != nil {
		return err
	}
	if pr == nil || pr.Status.Terminal() {
		return nil
	}

	deleted, err := s.reviewStore.DeleteOutstandingByPR(ctx, pr.RepoFullName, pr.Number)
	if err != nil {
		return err
	}
	if err := s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusDraft); err != nil {
		return err
	}

	slog.Info("PR converted to draft",
		"repo", pr.RepoFullName, "pr", pr.Number, "reviews_dropped", deleted)

	s.updateStatusComment(ctx, pr, commentDraft)
	return nil
}

func (s *EventService) handleClosed(ctx context.Context, ev model.PullRequestEvent) error {
	pr, err := s.prStore.GetByNumber(ctx, ev.RepoFullName, ev.PullRequest.Number)
	if err != nil {
		return err
	}
	if pr == nil {
		slog.Warn("closed event for untracked PR, skipping",
			"repo", ev.RepoFullName, "pr", ev.PullRequest.Number)
		return nil
	}
	if pr.Status == model.PRStatusClosed {
		return nil
	}

	// Outstanding reviews are dropped, not completed: a review that never
	// happened carries no duration.
	deleted, err := s.reviewStore.DeleteOutstandingByPR(ctx, pr.RepoFullName, pr.Number)
	if err != nil {
		return err
	}
	if err := s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusClosed); err != nil {
		return err
	}

	slog.Info("PR closed",
		"repo", pr.RepoFullName, "pr", pr.Number, "reviews_dropped", deleted)
	return nil
}

// HandleReview processes one pull_request_review event.
func (s *EventService) HandleReview(ctx context.Context, ev model.ReviewEvent) error {
	if ev.Action != model.ActionSubmitted {
		slog.Debug("ignoring review action", "action", ev.Action)
		return nil
	}
	if !s.managed(ev.RepoFullName, ev.PRNumber) {
		return nil
	}
	if strings.EqualFold(ev.Reviewer, ev.PRAuthor) {
		slog.Debug("ignoring self-review",
			"repo", ev.RepoFullName, "pr", ev.PRNumber, "reviewer", ev.Reviewer)
		return nil
	}

	pr, err := s.prStore.GetByNumber(ctx, ev.RepoFullName, ev.PRNumber)
	if err != nil {
		return err
	}
	if pr == nil {
		slog.Warn("review for untracked PR, skipping",
			"repo", ev.RepoFullName, "pr", ev.PRNumber)
		return nil
	}

	if ev.State == "commented" && !s.isSubstantiveReview(ctx, ev) {
		// Heuristic says this is a bare comment, not a real review. Observed
		// sender behavior still processes it, so we log and fall through.
		slog.Warn("review event looks like a bare comment, processing anyway",
			"repo", pr.RepoFullName, "pr", pr.Number,
			"reviewer", ev.Reviewer, "review_id", ev.ReviewID)
	}

	completedAt := ev.SubmittedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}

	requestedAt := s.requestedAt(ctx, pr, ev.Reviewer)

	matched, err := s.reviewStore.Complete(ctx, pr.RepoFullName, pr.Number, ev.Reviewer, completedAt, ev.ReviewURL)
	if err != nil {
		return fmt.Errorf("complete review %s#%d for %s: %w", pr.RepoFullName, pr.Number, ev.Reviewer, err)
	}

	if matched && !requestedAt.IsZero() {
		elapsed := s.calendar.Between(ev.Reviewer, requestedAt, completedAt)
		slog.Info("review completed",
			"repo", pr.RepoFullName, "pr", pr.Number,
			"reviewer", ev.Reviewer, "state", ev.State,
			"business_hours", workhours.Hours(elapsed))
	} else if !matched {
		slog.Info("review submitted with no matching outstanding request",
			"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", ev.Reviewer)
	}

	// A review trickling in after the close is recorded above, but a closed
	// PR gets no comment rewrite and no second-reviewer prompt.
	if pr.Status.Terminal() {
		return nil
	}

	if err := s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusReviewed); err != nil {
		return err
	}

	switch ev.State {
	case "approved":
		s.updateStatusComment(ctx, pr, commentApproved)
	case "changes_requested":
		s.updateStatusComment(ctx, pr, commentChangesRequested)
	}

	s.maybePromptSecondReviewer(ctx, pr)
	return nil
}

// SubmitReviewers records the author's manual reviewer choice and requests the
// reviews on the code host.
func (s *EventService) SubmitReviewers(ctx context.Context, repoFullName string, number int, reviewers []string) error {
	repo := s.cfg.Repo(repoFullName)
	if repo == nil {
		return fmt.Errorf("repository %s is not managed", repoFullName)
	}
	if number < repo.MinPRNumber {
		return fmt.Errorf("PR %s#%d predates adoption floor %d", repoFullName, number, repo.MinPRNumber)
	}

	pr, err := s.prStore.GetByNumber(ctx, repoFullName, number)
	if err != nil {
		return err
	}
	if pr == nil {
		return fmt.Errorf("PR %s#%d is not tracked", repoFullName, number)
	}
	if pr.Status.Terminal() {
		return fmt.Errorf("PR %s#%d is closed", repoFullName, number)
	}

	reviewers = s.filterCollaborators(ctx, repoFullName, reviewers)
	requested := s.ensureOutstandingAll(ctx, pr, reviewers)
	if len(requested) == 0 {
		return fmt.Errorf("no valid reviewers for PR %s#%d", repoFullName, number)
	}

	if err := s.prStore.UpdateStatus(ctx, repoFullName, number, model.PRStatusPendingReview); err != nil {
		return err
	}

	if err := s.ghClient.RequestReviewers(ctx, repoFullName, number, requested); err != nil {
		slog.Error("requesting reviewers failed",
			"repo", repoFullName, "pr", number, "error", err)
	}
	s.updateStatusComment(ctx, pr, reviewInProgressComment(requested))

	slog.Info("reviewers submitted",
		"repo", repoFullName, "pr", number, "reviewers", requested)
	return nil
}

// filterCollaborators drops submitted reviewers who are not collaborators on
// the repository; the code host would reject the review request anyway. When
// the collaborator list cannot be fetched the submission proceeds unvalidated.
func (s *EventService) filterCollaborators(ctx context.Context, repoFullName string, reviewers []string) []string {
	collaborators, err := s.ghClient.ListCollaborators(ctx, repoFullName)
	if err != nil {
		slog.Warn("listing collaborators failed, skipping reviewer validation",
			"repo", repoFullName, "error", err)
		return reviewers
	}
	if len(collaborators) == 0 {
		return reviewers
	}

	byLogin := make(map[string]bool, len(collaborators))
	for _, c := range collaborators {
		byLogin[strings.ToLower(c)] = true
	}

	var valid []string
	for _, reviewer := range reviewers {
		if !byLogin[strings.ToLower(reviewer)] {
			slog.Warn("submitted reviewer is not a collaborator, dropping",
				"repo", repoFullName, "reviewer", reviewer)
			continue
		}
		valid = append(valid, reviewer)
	}
	return valid
}

// ensureOutstandingAll records an outstanding review for each reviewer,
// skipping the PR author and logging replays. It returns the reviewers that
// were accepted (created or already outstanding).
func (s *EventService) ensureOutstandingAll(ctx context.Context, pr *model.PullRequest, reviewers []string) []string {
	var requested []string
	for _, reviewer := range reviewers {
		if reviewer == "" || strings.EqualFold(reviewer, pr.Author) {
			continue
		}
		created, err := s.reviewStore.CreateOutstanding(ctx, model.Review{
			RepoFullName: pr.RepoFullName,
			PRNumber:     pr.Number,
			Reviewer:     reviewer,
			RequestedAt:  s.now(),
		})
		if err != nil {
			slog.Error("recording review request failed",
				"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", reviewer, "error", err)
			continue
		}
		if !created {
			slog.Debug("review already outstanding",
				"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", reviewer)
		}
		requested = append(requested, reviewer)
	}
	return requested
}

// isSubstantiveReview classifies a "commented"-state review event. A genuine
// review carries at least one top-level review comment attached to its review
// id; a bare PR comment does not. The check is heuristic: on lookup failure
// the event is treated as a genuine review.
func (s *EventService) isSubstantiveReview(ctx context.Context, ev model.ReviewEvent) bool {
	comments, err := s.ghClient.ListReviewComments(ctx, ev.RepoFullName, ev.PRNumber)
	if err != nil {
		slog.Warn("listing review comments for classification failed, assuming genuine review",
			"repo", ev.RepoFullName, "pr", ev.PRNumber, "error", err)
		return true
	}

	for _, c := range comments {
		if c.ReviewID == ev.ReviewID && c.InReplyToID == nil {
			return true
		}
	}
	return false
}

// maybePromptSecondReviewer posts the second-reviewer prompt after the first
// completed review. Existing comments are scanned for the prompt marker so
// replayed events never post it twice.
func (s *EventService) maybePromptSecondReviewer(ctx context.Context, pr *model.PullRequest) {
	reviews, err := s.reviewStore.ListByPR(ctx, pr.RepoFullName, pr.Number)
	if err != nil {
		slog.Error("listing reviews failed",
			"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
		return
	}
	if len(reviews) != 1 {
		return
	}

	comments, err := s.ghClient.ListComments(ctx, pr.RepoFullName, pr.Number)
	if err != nil {
		slog.Error("listing comments failed",
			"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
		return
	}
	for _, c := range comments {
		if strings.Contains(c.Body, secondReviewerMarker) {
			return
		}
	}

	if _, err := s.ghClient.CreateComment(ctx, pr.RepoFullName, pr.Number, secondReviewerPrompt()); err != nil {
		slog.Error("posting second reviewer prompt failed",
			"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
		return
	}

	slog.Info("second reviewer prompt posted", "repo", pr.RepoFullName, "pr", pr.Number)
}

// requestedAt returns the request time of the reviewer's outstanding review,
// or the zero time when none exists.
func (s *EventService) requestedAt(ctx context.Context, pr *model.PullRequest, reviewer string) time.Time {
	outstanding, err := s.reviewStore.ListOutstandingByPR(ctx, pr.RepoFullName, pr.Number)
	if err != nil {
		slog.Error("listing outstanding reviews failed",
			"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
		return time.Time{}
	}
	for _, r := range outstanding {
		if strings.EqualFold(r.Reviewer, reviewer) {
			return r.RequestedAt
		}
	}
	return time.Time{}
}

// outstandingReviewers returns the logins with outstanding reviews on the PR.
func (s *EventService) outstandingReviewers(ctx context.Context, pr *model.PullRequest) []string {
	outstanding, err := s.reviewStore.ListOutstandingByPR(ctx, pr.RepoFullName, pr.Number)
	if err != nil {
		slog.Error("listing outstanding reviews failed",
			"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
		return nil
	}
	reviewers := make([]string, 0, len(outstanding))
	for _, r := range outstanding {
		reviewers = append(reviewers, r.Reviewer)
	}
	return reviewers
}

// postStatusComment posts the PR's status comment and records its id so later
// transitions can rewrite it in place. Failures are logged only; the local
// state change has already committed.
func (s *EventService) postStatusComment(ctx context.Context, repoFullName string, number int, body string) {
	commentID, err := s.ghClient.CreateComment(ctx, repoFullName, number, body)
	if err != nil {
		slog.Error("posting status comment failed",
			"repo", repoFullName, "pr", number, "error", err)
		return
	}
	if err := s.prStore.SetStatusCommentID(ctx, repoFullName, number, commentID); err != nil {
		slog.Error("recording status comment id failed",
			"repo", repoFullName, "pr", number, "comment_id", commentID, "error", err)
	}
}

// updateStatusComment rewrites the PR's status comment, posting a fresh one
// when none has been recorded yet. Failures are logged only.
func (s *EventService) updateStatusComment(ctx context.Context, pr *model.PullRequest, body string) {
	if pr.StatusCommentID == nil {
		s.postStatusComment(ctx, pr.RepoFullName, pr.Number, body)
		return
	}
	if err := s.ghClient.UpdateComment(ctx, pr.RepoFullName, *pr.StatusCommentID, body); err != nil {
		slog.Error("updating status comment failed",
			"repo", pr.RepoFullName, "pr", pr.Number,
			"comment_id", *pr.StatusCommentID, "error", err)
	}
}
