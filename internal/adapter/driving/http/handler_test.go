package httphandler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/reviewflow/internal/adapter/driving/http"
	"github.com/ericfisherdev/reviewflow/internal/domain/model"
)

const testSecret = "webhook-test-secret"

// --- Mock implementations ---

type mockEventHandler struct {
	prEvents     []model.PullRequestEvent
	reviewEvents []model.ReviewEvent
	submissions  []submission

	prErr     error
	reviewErr error
	submitErr error
}

type submission struct {
	repoFullName string
	number       int
	reviewers    []string
}

func (m *mockEventHandler) HandlePullRequest(_ context.Context, ev model.PullRequestEvent) error {
	if m.prErr != nil {
		return m.prErr
	}
	m.prEvents = append(m.prEvents, ev)
	return nil
}

func (m *mockEventHandler) HandleReview(_ context.Context, ev model.ReviewEvent) error {
	if m.reviewErr != nil {
		return m.reviewErr
	}
	m.reviewEvents = append(m.reviewEvents, ev)
	return nil
}

func (m *mockEventHandler) SubmitReviewers(_ context.Context, repoFullName string, number int, reviewers []string) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submissions = append(m.submissions, submission{repoFullName: repoFullName, number: number, reviewers: reviewers})
	return nil
}

type mockReminderSweeper struct {
	calls int
	err   error
}

func (m *mockReminderSweeper) RemindStaleReviews(_ context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.calls++
	return nil
}

type mockStatsProvider struct {
	stats model.Stats
	err   error
}

func (m *mockStatsProvider) Stats(_ context.Context) (model.Stats, error) {
	return m.stats, m.err
}

// --- Test helpers ---

func setupMux(events *mockEventHandler, reminders *mockReminderSweeper, stats *mockStatsProvider) http.Handler {
	if events == nil {
		events = &mockEventHandler{}
	}
	if reminders == nil {
		reminders = &mockReminderSweeper{}
	}
	if stats == nil {
		stats = &mockStatsProvider{}
	}
	h := httphandler.NewHandler(events, reminders, stats, testSecret, slog.Default())
	return httphandler.NewServeMux(h, slog.Default())
}

// signBody computes the sha256 HMAC signature GitHub sends with deliveries.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// webhookRequest builds a signed webhook delivery for the given event type.
func webhookRequest(t *testing.T, eventType string, payload any) *http.Request {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-Hub-Signature-256", signBody(testSecret, body))
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

func pullRequestPayload(action string, number int) map[string]any {
	return map[string]any{
		"action": action,
		"repository": map[string]any{
			"full_name": "octocat/hello-world",
		},
		"pull_request": map[string]any{
			"number": number,
			"title":  "Fix bug",
			"state":  "open",
			"draft":  false,
			"user":   map[string]any{"login": "dana"},
			"requested_reviewers": []map[string]any{
				{"login": "alice"},
			},
			"html_url":   fmt.Sprintf("https://github.com/octocat/hello-world/pull/%d", number),
			"created_at": "2026-01-20T10:00:00Z",
		},
	}
}

// --- Tests ---

func TestWebhook_PullRequestOpened(t *testing.T) {
	events := &mockEventHandler{}
	mux := setupMux(events, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, webhookRequest(t, "pull_request", pullRequestPayload("opened", 42)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, events.prEvents, 1)

	ev := events.prEvents[0]
	assert.Equal(t, "opened", ev.Action)
	assert.Equal(t, "octocat/hello-world", ev.RepoFullName)
	assert.Equal(t, 42, ev.PullRequest.Number)
	assert.Equal(t, "dana", ev.PullRequest.Author)
	assert.Equal(t, []string{"alice"}, ev.PullRequest.RequestedReviewers)
}

func TestWebhook_ReviewRequestedCarriesReviewer(t *testing.T) {
	events := &mockEventHandler{}
	mux := setupMux(events, nil, nil)

	payload := pullRequestPayload("review_requested", 42)
	payload["requested_reviewer"] = map[string]any{"login": "bob"}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, webhookRequest(t, "pull_request", payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, events.prEvents, 1)
	assert.Equal(t, "bob", events.prEvents[0].RequestedReviewer)
}

func TestWebhook_ReviewSubmitted(t *testing.T) {
	events := &mockEventHandler{}
	mux := setupMux(events, nil, nil)

	payload := map[string]any{
		"action": "submitted",
		"repository": map[string]any{
			"full_name": "octocat/hello-world",
		},
		"pull_request": map[string]any{
			"number": 42,
			"user":   map[string]any{"login": "dana"},
		},
		"review": map[string]any{
			"id":           int64(7001),
			"state":        "approved",
			"user":         map[string]any{"login": "alice"},
			"html_url":     "https://github.com/octocat/hello-world/pull/42#pullrequestreview-7001",
			"submitted_at": "2026-01-21T10:00:00Z",
		},
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, webhookRequest(t, "pull_request_review", payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, events.reviewEvents, 1)

	ev := events.reviewEvents[0]
	assert.Equal(t, "submitted", ev.Action)
	assert.Equal(t, 42, ev.PRNumber)
	assert.Equal(t, "dana", ev.PRAuthor)
	assert.Equal(t, "alice", ev.Reviewer)
	assert.Equal(t, "approved", ev.State)
	assert.Equal(t, int64(7001), ev.ReviewID)
	assert.Equal(t, "2026-01-21T10:00:00Z", ev.SubmittedAt.Format("2006-01-02T15:04:05Z"))
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	events := &mockEventHandler{}
	mux := setupMux(events, nil, nil)

	body, err := json.Marshal(pullRequestPayload("opened", 42))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature-256", signBody("wrong-secret", body))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, events.prEvents)
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	events := &mockEventHandler{}
	mux := setupMux(events, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "pull_request")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, events.prEvents)
}

func TestWebhook_UnhandledEventTypeAcknowledged(t *testing.T) {
	events := &mockEventHandler{}
	mux := setupMux(events, nil, nil)

	payload := map[string]any{
		"action": "created",
		"repository": map[string]any{
			"full_name": "octocat/hello-world",
		},
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, webhookRequest(t, "issue_comment", payload))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ignored", resp["status"])
	assert.Empty(t, events.prEvents)
	assert.Empty(t, events.reviewEvents)
}

func TestWebhook_ProcessingErrorReturns500(t *testing.T) {
	events := &mockEventHandler{prErr: errors.New("store unavailable")}
	mux := setupMux(events, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, webhookRequest(t, "pull_request", pullRequestPayload("opened", 42)))

	// 500 so the sender redelivers.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStats(t *testing.T) {
	stats := &mockStatsProvider{stats: model.Stats{ActivePRs: 3, TotalReviews: 17}}
	mux := setupMux(nil, nil, stats)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 3, resp["active_prs"])
	assert.Equal(t, 17, resp["total_reviews"])
}

func TestStats_StoreError(t *testing.T) {
	stats := &mockStatsProvider{err: errors.New("db closed")}
	mux := setupMux(nil, nil, stats)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCheckReminders(t *testing.T) {
	reminders := &mockReminderSweeper{}
	mux := setupMux(nil, reminders, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reminders/check", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reminders.calls)
}

func TestSubmitReviewers(t *testing.T) {
	events := &mockEventHandler{}
	mux := setupMux(events, nil, nil)

	body := strings.NewReader(`{"reviewers": ["alice", "bob"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/repos/octocat/hello-world/prs/42/reviewers", body)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, events.submissions, 1)

	sub := events.submissions[0]
	assert.Equal(t, "octocat/hello-world", sub.repoFullName)
	assert.Equal(t, 42, sub.number)
	assert.Equal(t, []string{"alice", "bob"}, sub.reviewers)
}

func TestSubmitReviewers_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{
			name: "invalid PR number",
			path: "/api/v1/repos/octocat/hello-world/prs/abc/reviewers",
			body: `{"reviewers": ["alice"]}`,
		},
		{
			name: "malformed body",
			path: "/api/v1/repos/octocat/hello-world/prs/42/reviewers",
			body: `{not json`,
		},
		{
			name: "empty reviewers",
			path: "/api/v1/repos/octocat/hello-world/prs/42/reviewers",
			body: `{"reviewers": []}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events := &mockEventHandler{}
			mux := setupMux(events, nil, nil)

			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, events.submissions)
		})
	}
}

func TestSubmitReviewers_ServiceError(t *testing.T) {
	events := &mockEventHandler{submitErr: errors.New("pull request octocat/hello-world#42 is not tracked")}
	mux := setupMux(events, nil, nil)

	body := strings.NewReader(`{"reviewers": ["alice"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/repos/octocat/hello-world/prs/42/reviewers", body)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp["error"], "not tracked")
}

func TestHealth(t *testing.T) {
	mux := setupMux(nil, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
}
