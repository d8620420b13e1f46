package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/ericfisherdev/reviewflow/internal/config"
	"github.com/ericfisherdev/reviewflow/internal/domain/model"
	"github.com/ericfisherdev/reviewflow/internal/domain/port/driven"
	"github.com/ericfisherdev/reviewflow/internal/domain/workhours"
)

const (
	cycleRetryAttempts = 3
	cycleRetryDelay    = 2 * time.Second
)

// ReconcileService runs the periodic sweep: auto-assigning reviewers to PRs
// whose authors never chose one, and nagging reviewers whose reviews have
// gone quiet. A failed cycle is logged and never terminates the loop;
// per-item external failures are logged and that item is skipped for the
// cycle.
type ReconcileService struct {
	prStore     driven.PRStore
	reviewStore driven.ReviewStore
	ghClient    driven.GitHubClient
	selector    *Selector
	calendar    *workhours.Calendar
	cfg         *config.Config
	now         func() time.Time
}

// NewReconcileService creates a ReconcileService with all required dependencies.
func NewReconcileService(
	prStore driven.PRStore,
	reviewStore driven.ReviewStore,
	ghClient driven.GitHubClient,
	selector *Selector,
	calendar *workhours.Calendar,
	cfg *config.Config,
) *ReconcileService {
	return &ReconcileService{
		prStore:     prStore,
		reviewStore: reviewStore,
		ghClient:    ghClient,
		selector:    selector,
		calendar:    calendar,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Start begins the reconciliation loop. It runs an immediate cycle, then
// repeats on the configured interval. Start blocks until the context is
// canceled.
func (s *ReconcileService) Start(ctx context.Context) {
	s.runCycle(ctx)

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconcile service stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle executes one sweep under bounded retry. Retry covers transient
// store failures; on exhaustion the cycle's error is logged and the loop
// continues at the next tick.
func (s *ReconcileService) runCycle(ctx context.Context) {
	start := s.now()

	err := retry.Do(
		func() error { return s.cycle(ctx) },
		retry.Context(ctx),
		retry.Attempts(cycleRetryAttempts),
		retry.Delay(cycleRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("reconcile cycle retrying", "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		slog.Error("reconcile cycle failed", "error", err)
		return
	}

	slog.Debug("reconcile cycle complete", "duration", time.Since(start).Round(time.Millisecond))
}

func (s *ReconcileService) cycle(ctx context.Context) error {
	if err := s.assignStalePRs(ctx); err != nil {
		return err
	}
	if err := s.assignSecondReviewers(ctx); err != nil {
		return err
	}
	return s.remindStaleReviews(ctx)
}

// assignStalePRs auto-assigns a reviewer to every PR still waiting on a
// reviewer choice past the configured grace period.
func (s *ReconcileService) assignStalePRs(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.AssignAfter)

	stale, err := s.prStore.ListStalePendingChoice(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale PRs: %w", err)
	}

	for _, pr := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.autoAssign(ctx, pr); err != nil {
			slog.Error("auto-assign failed",
				"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
		}
	}

	return nil
}

// autoAssign picks the least-loaded eligible reviewer for one stale PR,
// records the assignment, transitions the PR to pending review, then requests
// the review on the code host.
func (s *ReconcileService) autoAssign(ctx context.Context, pr model.PullRequest) error {
	repo := s.cfg.Repo(pr.RepoFullName)
	if repo == nil {
		slog.Warn("stale PR in unmanaged repository, skipping",
			"repo", pr.RepoFullName, "pr", pr.Number)
		return nil
	}

	// An event may have assigned a reviewer between the query and now.
	outstanding, err := s.reviewStore.ListOutstandingByPR(ctx, pr.RepoFullName, pr.Number)
	if err != nil {
		return err
	}
	if len(outstanding) > 0 {
		return s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusPendingReview)
	}

	// A close or draft conversion whose webhook never arrived would make the
	// assignment pointless; the remote state settles it. On lookup failure
	// the local state stands.
	if remote, err := s.ghClient.FetchPullRequest(ctx, pr.RepoFullName, pr.Number); err != nil {
		slog.Warn("fetching remote PR state failed, assigning from local state",
			"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
	} else if remote.State != "open" || remote.Draft {
		slog.Info("remote PR not open for review, skipping auto-assign",
			"repo", pr.RepoFullName, "pr", pr.Number,
			"state", remote.State, "draft", remote.Draft)
		return nil
	}

	reviewer, err := s.selector.Pick(ctx, repo.Reviewers, []string{pr.Author}, s.now())
	if err != nil {
		return fmt.Errorf("pick reviewer for %s#%d: %w", pr.RepoFullName, pr.Number, err)
	}

	created, err := s.reviewStore.CreateOutstanding(ctx, model.Review{
		RepoFullName: pr.RepoFullName,
		PRNumber:     pr.Number,
		Reviewer:     reviewer,
		RequestedAt:  s.now(),
	})
	if err != nil {
		return err
	}
	if !created {
		// Lost the race to a concurrent webhook delivery. The PR has its
		// reviewer; just fix the status.
		return s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusPendingReview)
	}

	if err := s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusPendingReview); err != nil {
		return err
	}

	slog.Info("reviewer auto-assigned",
		"repo", pr.RepoFullName, "pr", pr.Number,
		"reviewer", reviewer, "age", pr.Age(s.now()).Round(time.Minute))

	// Local state is committed; external effects are log-only from here.
	if err := s.ghClient.RequestReviewers(ctx, pr.RepoFullName, pr.Number, []string{reviewer}); err != nil {
		slog.Error("requesting auto-assigned reviewer failed",
			"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", reviewer, "error", err)
	}
	s.updateStatusComment(ctx, pr, reviewInProgressComment([]string{reviewer}))

	return nil
}

// assignSecondReviewers follows through on the second-reviewer prompt: a
// reviewed PR whose single completed review went unanswered past the grace
// period gets a second reviewer auto-assigned, excluding the author and the
// first reviewer. PRs that already saw two reviews are left alone.
func (s *ReconcileService) assignSecondReviewers(ctx context.Context) error {
	reviewed, err := s.prStore.ListByStatus(ctx, model.PRStatusReviewed)
	if err != nil {
		return fmt.Errorf("list reviewed PRs: %w", err)
	}

	for _, pr := range reviewed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.autoAssignSecond(ctx, pr); err != nil {
			slog.Error("second reviewer assignment failed",
				"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
		}
	}

	return nil
}

func (s *ReconcileService) autoAssignSecond(ctx context.Context, pr model.PullRequest) error {
	repo := s.cfg.Repo(pr.RepoFullName)
	if repo == nil {
		return nil
	}

	reviews, err := s.reviewStore.ListByPR(ctx, pr.RepoFullName, pr.Number)
	if err != nil {
		return err
	}
	if len(reviews) != 1 {
		return nil
	}

	first := reviews[0]
	if first.CompletedAt == nil || s.now().Sub(*first.CompletedAt) < s.cfg.AssignAfter {
		return nil
	}

	reviewer, err := s.selector.Pick(ctx, repo.Reviewers, []string{pr.Author, first.Reviewer}, s.now())
	if err != nil {
		if errors.Is(err, ErrNoCandidates) {
			slog.Debug("no candidates for second reviewer",
				"repo", pr.RepoFullName, "pr", pr.Number)
			return nil
		}
		return fmt.Errorf("pick second reviewer for %s#%d: %w", pr.RepoFullName, pr.Number, err)
	}

	created, err := s.reviewStore.CreateOutstanding(ctx, model.Review{
		RepoFullName: pr.RepoFullName,
		PRNumber:     pr.Number,
		Reviewer:     reviewer,
		RequestedAt:  s.now(),
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	if err := s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusPendingReview); err != nil {
		return err
	}

	slog.Info("second reviewer auto-assigned",
		"repo", pr.RepoFullName, "pr", pr.Number,
		"reviewer", reviewer, "first_reviewer", first.Reviewer)

	if err := s.ghClient.RequestReviewers(ctx, pr.RepoFullName, pr.Number, []string{reviewer}); err != nil {
		slog.Error("requesting second reviewer failed",
			"repo", pr.RepoFullName, "pr", pr.Number, "reviewer", reviewer, "error", err)
	}
	s.updateStatusComment(ctx, pr, reviewInProgressComment([]string{reviewer}))

	return nil
}

// RemindStaleReviews posts a numbered reminder on every outstanding review
// whose last reminder (or request, if never reminded) is older than the
// threshold. Reminders go out on weekdays and Saturday mornings in the
// reviewer's own time zone; outside that window the review waits.
func (s *ReconcileService) RemindStaleReviews(ctx context.Context) error {
	return s.remindStaleReviews(ctx)
}

func (s *ReconcileService) remindStaleReviews(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.cfg.ReminderThreshold)

	due, err := s.reviewStore.ListOutstandingNeedingReminder(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list reviews needing reminder: %w", err)
	}

	var sent int
	for _, review := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if now.Sub(review.ReminderDueSince()) < s.cfg.ReminderThreshold {
			continue
		}

		local := now.In(s.calendar.Zone(review.Reviewer))
		if !reminderWindowOpen(local) {
			continue
		}

		if err := s.sendReminder(ctx, review); err != nil {
			slog.Error("sending reminder failed",
				"repo", review.RepoFullName, "pr", review.PRNumber,
				"reviewer", review.Reviewer, "error", err)
			continue
		}
		sent++
	}

	if len(due) > 0 {
		slog.Info("reminder sweep complete", "due", len(due), "sent", sent)
	}
	return nil
}

// sendReminder posts the reminder comment, then stamps the review. The stamp
// follows the post so a failed post retries on the next cycle.
func (s *ReconcileService) sendReminder(ctx context.Context, review model.Review) error {
	n := review.ReminderCount + 1
	body := reminderComment(n, []string{review.Reviewer})

	if _, err := s.ghClient.CreateComment(ctx, review.RepoFullName, review.PRNumber, body); err != nil {
		return err
	}

	if err := s.reviewStore.MarkReminded(ctx, review.ID, s.now()); err != nil {
		return err
	}

	// Stamp the PR record too; a failed stamp does not retract the comment
	// already posted.
	if err := s.prStore.MarkReminded(ctx, review.RepoFullName, review.PRNumber, s.now()); err != nil {
		slog.Error("stamping PR reminder failed",
			"repo", review.RepoFullName, "pr", review.PRNumber, "error", err)
	}

	slog.Info("review reminder sent",
		"repo", review.RepoFullName, "pr", review.PRNumber,
		"reviewer", review.Reviewer, "reminder", n)
	return nil
}

// reminderWindowOpen reports whether reminders may go out at the given local
// time: any weekday, or Saturday before noon. Sundays stay quiet.
func reminderWindowOpen(local time.Time) bool {
	switch local.Weekday() {
	case time.Sunday:
		return false
	case time.Saturday:
		return local.Hour() < 12
	default:
		return true
	}
}

// SyncRepositories reconciles local state against the code host at startup.
// For each managed repository it lists every PR above the adoption floor,
// creates missing records for open PRs, and closes any local record whose
// remote counterpart is no longer open, force-completing its outstanding
// reviews at that moment.
func (s *ReconcileService) SyncRepositories(ctx context.Context) error {
	var syncErrors int
	for _, repo := range s.cfg.Repos {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.syncRepo(ctx, repo); err != nil {
			slog.Error("repository sync failed", "repo", repo.Name, "error", err)
			syncErrors++
		}
	}
	if syncErrors > 0 {
		return fmt.Errorf("startup sync: %d of %d repositories failed", syncErrors, len(s.cfg.Repos))
	}
	return nil
}

func (s *ReconcileService) syncRepo(ctx context.Context, repo config.Repo) error {
	remote, err := s.ghClient.FetchPullRequests(ctx, repo.Name, "all")
	if err != nil {
		return err
	}

	openByNumber := make(map[int]model.RemotePullRequest)
	var tracked, adopted int
	for _, pr := range remote {
		if pr.Number < repo.MinPRNumber {
			continue
		}
		tracked++
		if pr.State != "open" {
			continue
		}
		openByNumber[pr.Number] = pr

		if err := s.adoptRemotePR(ctx, repo.Name, pr); err != nil {
			slog.Error("adopting remote PR failed",
				"repo", repo.Name, "pr", pr.Number, "error", err)
			continue
		}
		adopted++
	}

	local, err := s.prStore.ListByRepository(ctx, repo.Name)
	if err != nil {
		return err
	}

	var closed int
	for _, pr := range local {
		if pr.Status == model.PRStatusClosed {
			continue
		}
		if _, open := openByNumber[pr.Number]; open {
			continue
		}

		completed, err := s.reviewStore.CompleteAllByPR(ctx, pr.RepoFullName, pr.Number, s.now())
		if err != nil {
			slog.Error("force-completing reviews failed",
				"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
			continue
		}
		if err := s.prStore.UpdateStatus(ctx, pr.RepoFullName, pr.Number, model.PRStatusClosed); err != nil {
			slog.Error("closing local PR failed",
				"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
			continue
		}
		closed++
		slog.Info("closed PR during sync",
			"repo", pr.RepoFullName, "pr", pr.Number, "reviews_completed", completed)
	}

	slog.Info("repository synced",
		"repo", repo.Name, "remote", tracked, "open", len(openByNumber),
		"adopted", adopted, "closed", closed)
	return nil
}

// adoptRemotePR creates a local record for an open remote PR when none
// exists. PRs arriving with reviewers already requested go straight to
// pending review with their outstanding rows ensured.
func (s *ReconcileService) adoptRemotePR(ctx context.Context, repoFullName string, remote model.RemotePullRequest) error {
	status := model.PRStatusPendingReviewerChoice
	switch {
	case remote.Draft:
		status = model.PRStatusDraft
	case len(remote.RequestedReviewers) > 0:
		status = model.PRStatusPendingReview
	}

	created, err := s.prStore.Create(ctx, model.PullRequest{
		RepoFullName: repoFullName,
		Number:       remote.Number,
		Title:        remote.Title,
		Author:       remote.Author,
		Status:       status,
		CreatedAt:    remote.CreatedAt,
	})
	if err != nil {
		return err
	}
	if created {
		slog.Info("adopted open PR during sync",
			"repo", repoFullName, "pr", remote.Number, "status", string(status))
	}

	for _, reviewer := range remote.RequestedReviewers {
		if strings.EqualFold(reviewer, remote.Author) {
			continue
		}
		if _, err := s.reviewStore.CreateOutstanding(ctx, model.Review{
			RepoFullName: repoFullName,
			PRNumber:     remote.Number,
			Reviewer:     reviewer,
			RequestedAt:  s.now(),
		}); err != nil {
			slog.Error("ensuring outstanding review during sync failed",
				"repo", repoFullName, "pr", remote.Number, "reviewer", reviewer, "error", err)
		}
	}

	return nil
}

// updateStatusComment rewrites the PR's status comment, posting one if it was
// never recorded. Failures are logged only.
func (s *ReconcileService) updateStatusComment(ctx context.Context, pr model.PullRequest, body string) {
	if pr.StatusCommentID == nil {
		commentID, err := s.ghClient.CreateComment(ctx, pr.RepoFullName, pr.Number, body)
		if err != nil {
			slog.Error("posting status comment failed",
				"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
			return
		}
		if err := s.prStore.SetStatusCommentID(ctx, pr.RepoFullName, pr.Number, commentID); err != nil {
			slog.Error("recording status comment id failed",
				"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
		}
		return
	}
	if err := s.ghClient.UpdateComment(ctx, pr.RepoFullName, *pr.StatusCommentID, body); err != nil {
		slog.Error("updating status comment failed",
			"repo", pr.RepoFullName, "pr", pr.Number, "error", err)
	}
}
