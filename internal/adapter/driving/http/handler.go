// Package httphandler is the HTTP driving adapter: the webhook endpoint,
// the stats API, and the manual trigger routes.
package httphandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/reviewflow/internal/domain/model"
)

// EventHandler processes decoded webhook events and manual reviewer
// submissions.
type EventHandler interface {
	HandlePullRequest(ctx context.Context, ev model.PullRequestEvent) error
	HandleReview(ctx context.Context, ev model.ReviewEvent) error
	SubmitReviewers(ctx context.Context, repoFullName string, number int, reviewers []string) error
}

// ReminderSweeper runs one reminder sweep on demand.
type ReminderSweeper interface {
	RemindStaleReviews(ctx context.Context) error
}

// StatsProvider returns the summary counts.
type StatsProvider interface {
	Stats(ctx context.Context) (model.Stats, error)
}

// Handler is the HTTP driving adapter.
type Handler struct {
	events        EventHandler
	reminders     ReminderSweeper
	stats         StatsProvider
	webhookSecret []byte
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	events EventHandler,
	reminders ReminderSweeper,
	stats StatsProvider,
	webhookSecret string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		events:        events,
		reminders:     reminders,
		stats:         stats,
		webhookSecret: []byte(webhookSecret),
		logger:        logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook", h.Webhook)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/reminders/check", h.CheckReminders)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/prs/{number}/reviewers", h.SubmitReviewers)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Webhook receives GitHub webhook deliveries. The signature is verified over
// the raw body before any decoding; unsigned or mismatched deliveries are
// rejected with no state change. Event types other than pull_request and
// pull_request_review are acknowledged and ignored.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := gh.ValidatePayload(r, h.webhookSecret)
	if err != nil {
		h.logger.Warn("webhook signature validation failed", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	eventType := gh.WebHookType(r)
	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		h.logger.Warn("webhook payload parse failed", "type", eventType, "error", err)
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	switch ev := event.(type) {
	case *gh.PullRequestEvent:
		if ev.GetPullRequest() == nil {
			h.logger.Warn("pull_request event without a pull request payload")
			writeJSON(w, http.StatusOK, statusResponse{Status: "ignored"})
			return
		}
		if err := h.events.HandlePullRequest(r.Context(), mapPullRequestEvent(ev)); err != nil {
			h.logger.Error("pull request event failed",
				"repo", ev.GetRepo().GetFullName(), "pr", ev.GetPullRequest().GetNumber(), "error", err)
			writeError(w, http.StatusInternalServerError, "event processing failed")
			return
		}
	case *gh.PullRequestReviewEvent:
		if ev.GetReview() == nil || ev.GetPullRequest() == nil {
			h.logger.Warn("pull_request_review event missing review or pull request payload")
			writeJSON(w, http.StatusOK, statusResponse{Status: "ignored"})
			return
		}
		if err := h.events.HandleReview(r.Context(), mapReviewEvent(ev)); err != nil {
			h.logger.Error("review event failed",
				"repo", ev.GetRepo().GetFullName(), "pr", ev.GetPullRequest().GetNumber(), "error", err)
			writeError(w, http.StatusInternalServerError, "event processing failed")
			return
		}
	default:
		h.logger.Debug("ignoring webhook event type", "type", eventType)
		writeJSON(w, http.StatusOK, statusResponse{Status: "ignored"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// Stats returns the summary counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// CheckReminders triggers one reminder sweep outside the regular schedule.
func (h *Handler) CheckReminders(w http.ResponseWriter, r *http.Request) {
	if err := h.reminders.RemindStaleReviews(r.Context()); err != nil {
		h.logger.Error("manual reminder sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reminder sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "reminder check triggered"})
}

// SubmitReviewers records a manual reviewer choice for a PR.
func (h *Handler) SubmitReviewers(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	repo := r.PathValue("repo")

	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid PR number")
		return
	}

	var req SubmitReviewersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Reviewers) == 0 {
		writeError(w, http.StatusBadRequest, "reviewers list is empty")
		return
	}

	repoFullName := owner + "/" + repo
	if err := h.events.SubmitReviewers(r.Context(), repoFullName, number, req.Reviewers); err != nil {
		h.logger.Error("reviewer submission failed",
			"repo", repoFullName, "pr", number, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// mapPullRequestEvent converts a go-github pull_request event to the domain
// event shape.
func mapPullRequestEvent(ev *gh.PullRequestEvent) model.PullRequestEvent {
	return model.PullRequestEvent{
		Action:            ev.GetAction(),
		RepoFullName:      ev.GetRepo().GetFullName(),
		PullRequest:       mapRemotePR(ev.GetPullRequest()),
		RequestedReviewer: ev.GetRequestedReviewer().GetLogin(),
	}
}

// mapReviewEvent converts a go-github pull_request_review event to the domain
// event shape.
func mapReviewEvent(ev *gh.PullRequestReviewEvent) model.ReviewEvent {
	review := ev.GetReview()
	pr := ev.GetPullRequest()

	return model.ReviewEvent{
		Action:       ev.GetAction(),
		RepoFullName: ev.GetRepo().GetFullName(),
		PRNumber:     pr.GetNumber(),
		PRAuthor:     pr.GetUser().GetLogin(),
		Reviewer:     review.GetUser().GetLogin(),
		State:        review.GetState(),
		ReviewID:     review.GetID(),
		ReviewURL:    review.GetHTMLURL(),
		SubmittedAt:  review.GetSubmittedAt().Time,
	}
}

// mapRemotePR converts a go-github PullRequest to the domain remote PR shape.
func mapRemotePR(pr *gh.PullRequest) model.RemotePullRequest {
	reviewers := make([]string, 0, len(pr.RequestedReviewers))
	for _, u := range pr.RequestedReviewers {
		reviewers = append(reviewers, u.GetLogin())
	}

	return model.RemotePullRequest{
		Number:             pr.GetNumber(),
		Title:              pr.GetTitle(),
		Author:             pr.GetUser().GetLogin(),
		State:              pr.GetState(),
		Draft:              pr.GetDraft(),
		RequestedReviewers: reviewers,
		URL:                pr.GetHTMLURL(),
		CreatedAt:          pr.GetCreatedAt().Time,
	}
}
