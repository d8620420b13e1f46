package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/reviewflow/internal/domain/model"
	"github.com/ericfisherdev/reviewflow/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRStore = (*PRRepo)(nil)

// PRRepo is the SQLite implementation of the PRStore port interface.
type PRRepo struct {
	db *DB
}

// NewPRRepo creates a new PRRepo backed by the given DB.
func NewPRRepo(db *DB) *PRRepo {
	return &PRRepo{db: db}
}

// Create inserts a new pull request record. The UNIQUE(repo_full_name, number)
// constraint plus ON CONFLICT DO NOTHING makes replayed "opened" deliveries
// report false instead of failing or duplicating.
func (r *PRRepo) Create(ctx context.Context, pr model.PullRequest) (bool, error) {
	const query = `
		INSERT INTO pull_requests (
			repo_full_name, number, title, author, status,
			created_at, status_comment_id, last_reminder_at, reminder_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_full_name, number) DO NOTHING
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		pr.RepoFullName, pr.Number, pr.Title, pr.Author, string(pr.Status),
		formatTime(pr.CreatedAt), nullableInt64(pr.StatusCommentID), nullableTime(pr.LastReminderAt), pr.ReminderCount,
	)
	if err != nil {
		return false, fmt.Errorf("create pull request %s#%d: %w", pr.RepoFullName, pr.Number, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// GetByNumber retrieves a single pull request by repository and number.
// Returns nil, nil if the pull request is not tracked.
func (r *PRRepo) GetByNumber(ctx context.Context, repoFullName string, number int) (*model.PullRequest, error) {
	const query = `
		SELECT id, repo_full_name, number, title, author, status,
		       created_at, status_comment_id, last_reminder_at, reminder_count
		FROM pull_requests
		WHERE repo_full_name = ? AND number = ?
	`

	pr, err := scanPR(r.db.Reader.QueryRowContext(ctx, query, repoFullName, number))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get PR %s#%d: %w", repoFullName, number, err)
	}

	return pr, nil
}

// UpdateStatus sets the status of a tracked pull request. Returns an error if
// the pull request is not tracked.
func (r *PRRepo) UpdateStatus(ctx context.Context, repoFullName string, number int, status model.PRStatus) error {
	const query = `UPDATE pull_requests SET status = ? WHERE repo_full_name = ? AND number = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(status), repoFullName, number)
	if err != nil {
		return fmt.Errorf("update status of PR %s#%d: %w", repoFullName, number, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("pull request %s#%d not tracked", repoFullName, number)
	}

	return nil
}

// SetStatusCommentID records the ID of the externally posted status comment.
func (r *PRRepo) SetStatusCommentID(ctx context.Context, repoFullName string, number int, commentID int64) error {
	const query = `UPDATE pull_requests SET status_comment_id = ? WHERE repo_full_name = ? AND number = ?`

	_, err := r.db.Writer.ExecContext(ctx, query, commentID, repoFullName, number)
	if err != nil {
		return fmt.Errorf("set status comment of PR %s#%d: %w", repoFullName, number, err)
	}

	return nil
}

// MarkReminded bumps the PR's reminder count and stamps the reminder time.
func (r *PRRepo) MarkReminded(ctx context.Context, repoFullName string, number int, at time.Time) error {
	const query = `
		UPDATE pull_requests
		SET reminder_count = reminder_count + 1, last_reminder_at = ?
		WHERE repo_full_name = ? AND number = ?
	`

	_, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), repoFullName, number)
	if err != nil {
		return fmt.Errorf("mark PR %s#%d reminded: %w", repoFullName, number, err)
	}

	return nil
}

// ListStalePendingChoice returns PRs in pending_reviewer_choice created at or
// before the cutoff, oldest first.
func (r *PRRepo) ListStalePendingChoice(ctx context.Context, cutoff time.Time) ([]model.PullRequest, error) {
	const query = `
		SELECT id, repo_full_name, number, title, author, status,
		       created_at, status_comment_id, last_reminder_at, reminder_count
		FROM pull_requests
		WHERE status = ? AND created_at <= ?
		ORDER BY created_at
	`

	return r.queryPRs(ctx, query, string(model.PRStatusPendingReviewerChoice), formatTime(cutoff))
}

// ListByRepository returns all pull requests for the given repository, ordered by number.
func (r *PRRepo) ListByRepository(ctx context.Context, repoFullName string) ([]model.PullRequest, error) {
	const query = `
		SELECT id, repo_full_name, number, title, author, status,
		       created_at, status_comment_id, last_reminder_at, reminder_count
		FROM pull_requests
		WHERE repo_full_name = ?
		ORDER BY number
	`

	return r.queryPRs(ctx, query, repoFullName)
}

// ListByStatus returns all pull requests in the given status, oldest first.
func (r *PRRepo) ListByStatus(ctx context.Context, status model.PRStatus) ([]model.PullRequest, error) {
	const query = `
		SELECT id, repo_full_name, number, title, author, status,
		       created_at, status_comment_id, last_reminder_at, reminder_count
		FROM pull_requests
		WHERE status = ?
		ORDER BY created_at
	`

	return r.queryPRs(ctx, query, string(status))
}

// CountActive returns the number of PRs whose status is not closed.
func (r *PRRepo) CountActive(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM pull_requests WHERE status != ?`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, string(model.PRStatusClosed)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active pull requests: %w", err)
	}

	return count, nil
}

func (r *PRRepo) queryPRs(ctx context.Context, query string, args ...any) ([]model.PullRequest, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pull requests: %w", err)
	}
	defer rows.Close()

	var prs []model.PullRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		prs = append(prs, *pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull requests: %w", err)
	}

	return prs, nil
}

func scanPR(s scanner) (*model.PullRequest, error) {
	var pr model.PullRequest
	var status string
	var createdAt string
	var statusCommentID sql.NullInt64
	var lastReminderAt sql.NullString

	err := s.Scan(
		&pr.ID, &pr.RepoFullName, &pr.Number, &pr.Title, &pr.Author,
		&status, &createdAt, &statusCommentID, &lastReminderAt, &pr.ReminderCount,
	)
	if err != nil {
		return nil, err
	}

	pr.Status = model.PRStatus(status)

	if statusCommentID.Valid {
		id := statusCommentID.Int64
		pr.StatusCommentID = &id
	}

	pr.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	if lastReminderAt.Valid {
		t, err := parseTime(lastReminderAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_reminder_at: %w", err)
		}
		pr.LastReminderAt = &t
	}

	return &pr, nil
}
