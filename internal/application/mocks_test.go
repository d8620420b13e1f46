package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewflow/internal/domain/model"
)

// --- Stateful port fakes shared by the application tests ---

func prKey(repoFullName string, number int) string {
	return fmt.Sprintf("%s#%d", repoFullName, number)
}

type fakePRStore struct {
	prs map[string]*model.PullRequest
}

func newFakePRStore() *fakePRStore {
	return &fakePRStore{prs: make(map[string]*model.PullRequest)}
}

func (f *fakePRStore) Create(_ context.Context, pr model.PullRequest) (bool, error) {
	k := prKey(pr.RepoFullName, pr.Number)
	if _, ok := f.prs[k]; ok {
		return false, nil
	}
	pr.ID = int64(len(f.prs) + 1)
	f.prs[k] = &pr
	return true, nil
}

func (f *fakePRStore) GetByNumber(_ context.Context, repoFullName string, number int) (*model.PullRequest, error) {
	pr, ok := f.prs[prKey(repoFullName, number)]
	if !ok {
		return nil, nil
	}
	clone := *pr
	return &clone, nil
}

func (f *fakePRStore) UpdateStatus(_ context.Context, repoFullName string, number int, status model.PRStatus) error {
	pr, ok := f.prs[prKey(repoFullName, number)]
	if !ok {
		return fmt.Errorf("pull request %s#%d not tracked", repoFullName, number)
	}
	pr.Status = status
	return nil
}

func (f *fakePRStore) SetStatusCommentID(_ context.Context, repoFullName string, number int, commentID int64) error {
	pr, ok := f.prs[prKey(repoFullName, number)]
	if !ok {
		return fmt.Errorf("pull request %s#%d not tracked", repoFullName, number)
	}
	pr.StatusCommentID = &commentID
	return nil
}

func (f *fakePRStore) MarkReminded(_ context.Context, repoFullName string, number int, at time.Time) error {
	pr, ok := f.prs[prKey(repoFullName, number)]
	if !ok {
		return fmt.Errorf("pull request %s#%d not tracked", repoFullName, number)
	}
	pr.ReminderCount++
	pr.LastReminderAt = &at
	return nil
}

func (f *fakePRStore) ListStalePendingChoice(_ context.Context, cutoff time.Time) ([]model.PullRequest, error) {
	var stale []model.PullRequest
	for _, pr := range f.prs {
		if pr.Status == model.PRStatusPendingReviewerChoice && !pr.CreatedAt.After(cutoff) {
			stale = append(stale, *pr)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Number < stale[j].Number })
	return stale, nil
}

func (f *fakePRStore) ListByRepository(_ context.Context, repoFullName string) ([]model.PullRequest, error) {
	var prs []model.PullRequest
	for _, pr := range f.prs {
		if pr.RepoFullName == repoFullName {
			prs = append(prs, *pr)
		}
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].Number < prs[j].Number })
	return prs, nil
}

func (f *fakePRStore) ListByStatus(_ context.Context, status model.PRStatus) ([]model.PullRequest, error) {
	var prs []model.PullRequest
	for _, pr := range f.prs {
		if pr.Status == status {
			prs = append(prs, *pr)
		}
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].Number < prs[j].Number })
	return prs, nil
}

func (f *fakePRStore) CountActive(_ context.Context) (int, error) {
	var n int
	for _, pr := range f.prs {
		if pr.Status != model.PRStatusClosed {
			n++
		}
	}
	return n, nil
}

type fakeReviewStore struct {
	nextID   int64
	reviews  []*model.Review
	workload map[string]int
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{workload: make(map[string]int)}
}

func (f *fakeReviewStore) findOutstanding(repoFullName string, number int, reviewer string) *model.Review {
	for _, r := range f.reviews {
		if r.RepoFullName == repoFullName && r.PRNumber == number &&
			strings.EqualFold(r.Reviewer, reviewer) && r.CompletedAt == nil {
			return r
		}
	}
	return nil
}

func (f *fakeReviewStore) CreateOutstanding(_ context.Context, review model.Review) (bool, error) {
	if f.findOutstanding(review.RepoFullName, review.PRNumber, review.Reviewer) != nil {
		return false, nil
	}
	f.nextID++
	review.ID = f.nextID
	f.reviews = append(f.reviews, &review)
	return true, nil
}

func (f *fakeReviewStore) Complete(_ context.Context, repoFullName string, number int, reviewer string, completedAt time.Time, reviewURL string) (bool, error) {
	r := f.findOutstanding(repoFullName, number, reviewer)
	if r == nil {
		return false, nil
	}
	r.CompletedAt = &completedAt
	r.ReviewURL = reviewURL
	return true, nil
}

func (f *fakeReviewStore) CompleteAllByPR(_ context.Context, repoFullName string, number int, completedAt time.Time) (int, error) {
	var n int
	for _, r := range f.reviews {
		if r.RepoFullName == repoFullName && r.PRNumber == number && r.CompletedAt == nil {
			r.CompletedAt = &completedAt
			n++
		}
	}
	return n, nil
}

func (f *fakeReviewStore) DeleteOutstandingByPR(_ context.Context, repoFullName string, number int) (int, error) {
	var kept []*model.Review
	var deleted int
	for _, r := range f.reviews {
		if r.RepoFullName == repoFullName && r.PRNumber == number && r.CompletedAt == nil {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.reviews = kept
	return deleted, nil
}

func (f *fakeReviewStore) DeleteOutstanding(_ context.Context, repoFullName string, number int, reviewer string) (bool, error) {
	for i, r := range f.reviews {
		if r.RepoFullName == repoFullName && r.PRNumber == number &&
			strings.EqualFold(r.Reviewer, reviewer) && r.CompletedAt == nil {
			f.reviews = append(f.reviews[:i], f.reviews[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReviewStore) ListByPR(_ context.Context, repoFullName string, number int) ([]model.Review, error) {
	var out []model.Review
	for _, r := range f.reviews {
		if r.RepoFullName == repoFullName && r.PRNumber == number {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) ListOutstandingByPR(_ context.Context, repoFullName string, number int) ([]model.Review, error) {
	var out []model.Review
	for _, r := range f.reviews {
		if r.RepoFullName == repoFullName && r.PRNumber == number && r.CompletedAt == nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) ListOutstandingNeedingReminder(_ context.Context, cutoff time.Time) ([]model.Review, error) {
	var out []model.Review
	for _, r := range f.reviews {
		if r.CompletedAt != nil {
			continue
		}
		if !r.ReminderDueSince().After(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) MarkReminded(_ context.Context, id int64, at time.Time) error {
	for _, r := range f.reviews {
		if r.ID == id {
			r.ReminderCount++
			r.LastReminderAt = &at
			return nil
		}
	}
	return fmt.Errorf("review %d not found", id)
}

func (f *fakeReviewStore) WorkloadSince(_ context.Context, _ time.Time) (map[string]int, error) {
	return f.workload, nil
}

func (f *fakeReviewStore) CountAll(_ context.Context) (int, error) {
	return len(f.reviews), nil
}

type postedComment struct {
	repoFullName string
	number       int
	body         string
}

type reviewerRequest struct {
	repoFullName string
	number       int
	reviewers    []string
}

type fakeGitHubClient struct {
	nextCommentID int64
	posted        []postedComment
	updated       map[int64]string
	requests      []reviewerRequest

	issueComments  []model.IssueComment
	reviewComments []model.ReviewComment
	remotePRs      map[string][]model.RemotePullRequest
	collaborators  []string

	commentErr error
	requestErr error
}

func newFakeGitHubClient() *fakeGitHubClient {
	return &fakeGitHubClient{
		nextCommentID: 1000,
		updated:       make(map[int64]string),
		remotePRs:     make(map[string][]model.RemotePullRequest),
	}
}

func (f *fakeGitHubClient) CreateComment(_ context.Context, repoFullName string, number int, body string) (int64, error) {
	if f.commentErr != nil {
		return 0, f.commentErr
	}
	f.nextCommentID++
	f.posted = append(f.posted, postedComment{repoFullName: repoFullName, number: number, body: body})
	f.issueComments = append(f.issueComments, model.IssueComment{
		ID: f.nextCommentID, Author: "reviewflow[bot]", Body: body,
	})
	return f.nextCommentID, nil
}

func (f *fakeGitHubClient) UpdateComment(_ context.Context, _ string, commentID int64, body string) error {
	if f.commentErr != nil {
		return f.commentErr
	}
	f.updated[commentID] = body
	return nil
}

func (f *fakeGitHubClient) ListComments(_ context.Context, _ string, _ int) ([]model.IssueComment, error) {
	return f.issueComments, nil
}

func (f *fakeGitHubClient) ListReviewComments(_ context.Context, _ string, _ int) ([]model.ReviewComment, error) {
	return f.reviewComments, nil
}

func (f *fakeGitHubClient) RequestReviewers(_ context.Context, repoFullName string, number int, reviewers []string) error {
	if f.requestErr != nil {
		return f.requestErr
	}
	f.requests = append(f.requests, reviewerRequest{repoFullName: repoFullName, number: number, reviewers: reviewers})
	return nil
}

func (f *fakeGitHubClient) ListCollaborators(_ context.Context, _ string) ([]string, error) {
	return f.collaborators, nil
}

func (f *fakeGitHubClient) FetchPullRequest(_ context.Context, repoFullName string, number int) (*model.RemotePullRequest, error) {
	for _, pr := range f.remotePRs[repoFullName] {
		if pr.Number == number {
			clone := pr
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("PR %s#%d not found", repoFullName, number)
}

func (f *fakeGitHubClient) FetchPullRequests(_ context.Context, repoFullName string, state string) ([]model.RemotePullRequest, error) {
	var out []model.RemotePullRequest
	for _, pr := range f.remotePRs[repoFullName] {
		if state == "all" || pr.State == state {
			out = append(out, pr)
		}
	}
	return out, nil
}
