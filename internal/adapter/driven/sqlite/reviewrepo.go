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
var _ driven.ReviewStore = (*ReviewRepo)(nil)

// ReviewRepo is the SQLite implementation of the ReviewStore port interface.
// The single-outstanding-review invariant is enforced by the partial unique
// index idx_reviews_outstanding, so CreateOutstanding stays correct under
// concurrent duplicate deliveries.
type ReviewRepo struct {
	db *DB
}

// NewReviewRepo creates a new ReviewRepo backed by the given DB.
func NewReviewRepo(db *DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

// CreateOutstanding inserts an outstanding review request. It reports false
// when an outstanding row for the same (repo, PR, reviewer) already exists.
func (r *ReviewRepo) CreateOutstanding(ctx context.Context, review model.Review) (bool, error) {
	const query = `
		INSERT INTO reviews (
			repo_full_name, pr_number, reviewer, requested_at,
			completed_at, review_url, last_reminder_at, reminder_count
		) VALUES (?, ?, ?, ?, NULL, ?, NULL, 0)
		ON CONFLICT(repo_full_name, pr_number, reviewer) WHERE completed_at IS NULL DO NOTHING
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		review.RepoFullName, review.PRNumber, review.Reviewer,
		formatTime(review.RequestedAt), review.ReviewURL,
	)
	if err != nil {
		return false, fmt.Errorf("create outstanding review %s#%d for %s: %w",
			review.RepoFullName, review.PRNumber, review.Reviewer, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// Complete marks the outstanding review for (repo, PR, reviewer) as completed.
// It reports false when no outstanding row matched.
func (r *ReviewRepo) Complete(ctx context.Context, repoFullName string, number int, reviewer string, completedAt time.Time, reviewURL string) (bool, error) {
	const query = `
		UPDATE reviews
		SET completed_at = ?, review_url = ?
		WHERE repo_full_name = ? AND pr_number = ? AND reviewer = ? AND completed_at IS NULL
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		formatTime(completedAt), reviewURL, repoFullName, number, reviewer,
	)
	if err != nil {
		return false, fmt.Errorf("complete review %s#%d for %s: %w", repoFullName, number, reviewer, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// CompleteAllByPR force-completes every outstanding review on a PR and
// returns the number of rows affected.
func (r *ReviewRepo) CompleteAllByPR(ctx context.Context, repoFullName string, number int, completedAt time.Time) (int, error) {
	const query = `
		UPDATE reviews
		SET completed_at = ?
		WHERE repo_full_name = ? AND pr_number = ? AND completed_at IS NULL
	`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(completedAt), repoFullName, number)
	if err != nil {
		return 0, fmt.Errorf("complete all reviews for %s#%d: %w", repoFullName, number, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return int(rows), nil
}

// DeleteOutstandingByPR removes every outstanding review on a PR without
// marking it complete and returns the number of rows deleted.
func (r *ReviewRepo) DeleteOutstandingByPR(ctx context.Context, repoFullName string, number int) (int, error) {
	const query = `
		DELETE FROM reviews
		WHERE repo_full_name = ? AND pr_number = ? AND completed_at IS NULL
	`

	result, err := r.db.Writer.ExecContext(ctx, query, repoFullName, number)
	if err != nil {
		return 0, fmt.Errorf("delete outstanding reviews for %s#%d: %w", repoFullName, number, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return int(rows), nil
}

// DeleteOutstanding removes a single reviewer's outstanding review on a PR.
// It reports false when no outstanding row matched.
func (r *ReviewRepo) DeleteOutstanding(ctx context.Context, repoFullName string, number int, reviewer string) (bool, error) {
	const query = `
		DELETE FROM reviews
		WHERE repo_full_name = ? AND pr_number = ? AND reviewer = ? AND completed_at IS NULL
	`

	result, err := r.db.Writer.ExecContext(ctx, query, repoFullName, number, reviewer)
	if err != nil {
		return false, fmt.Errorf("delete outstanding review %s#%d for %s: %w", repoFullName, number, reviewer, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// ListByPR returns all reviews for the given PR, oldest request first.
func (r *ReviewRepo) ListByPR(ctx context.Context, repoFullName string, number int) ([]model.Review, error) {
	const query = `
		SELECT id, repo_full_name, pr_number, reviewer, requested_at,
		       completed_at, review_url, last_reminder_at, reminder_count
		FROM reviews
		WHERE repo_full_name = ? AND pr_number = ?
		ORDER BY requested_at, id
	`

	return r.queryReviews(ctx, query, repoFullName, number)
}

// ListOutstandingByPR returns the outstanding reviews for the given PR,
// oldest request first.
func (r *ReviewRepo) ListOutstandingByPR(ctx context.Context, repoFullName string, number int) ([]model.Review, error) {
	const query = `
		SELECT id, repo_full_name, pr_number, reviewer, requested_at,
		       completed_at, review_url, last_reminder_at, reminder_count
		FROM reviews
		WHERE repo_full_name = ? AND pr_number = ? AND completed_at IS NULL
		ORDER BY requested_at, id
	`

	return r.queryReviews(ctx, query, repoFullName, number)
}

// ListOutstandingNeedingReminder returns outstanding reviews whose last
// reminder (or request time, if never reminded) is at or before the cutoff.
func (r *ReviewRepo) ListOutstandingNeedingReminder(ctx context.Context, cutoff time.Time) ([]model.Review, error) {
	const query = `
		SELECT id, repo_full_name, pr_number, reviewer, requested_at,
		       completed_at, review_url, last_reminder_at, reminder_count
		FROM reviews
		WHERE completed_at IS NULL AND COALESCE(last_reminder_at, requested_at) <= ?
		ORDER BY requested_at, id
	`

	return r.queryReviews(ctx, query, formatTime(cutoff))
}

// MarkReminded bumps the review's reminder count and stamps the time.
func (r *ReviewRepo) MarkReminded(ctx context.Context, id int64, at time.Time) error {
	const query = `
		UPDATE reviews
		SET reminder_count = reminder_count + 1, last_reminder_at = ?
		WHERE id = ?
	`

	_, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark review %d reminded: %w", id, err)
	}

	return nil
}

// WorkloadSince returns, per reviewer, the number of distinct PRs with a
// review completed at or after the given instant.
func (r *ReviewRepo) WorkloadSince(ctx context.Context, since time.Time) (map[string]int, error) {
	const query = `
		SELECT reviewer, COUNT(DISTINCT repo_full_name || '#' || pr_number)
		FROM reviews
		WHERE completed_at IS NOT NULL AND completed_at >= ?
		GROUP BY reviewer
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query reviewer workload: %w", err)
	}
	defer rows.Close()

	workload := make(map[string]int)
	for rows.Next() {
		var reviewer string
		var count int
		if err := rows.Scan(&reviewer, &count); err != nil {
			return nil, fmt.Errorf("scan reviewer workload: %w", err)
		}
		workload[reviewer] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviewer workload: %w", err)
	}

	return workload, nil
}

// CountAll returns the total number of review rows, completed or not.
func (r *ReviewRepo) CountAll(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM reviews`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}

	return count, nil
}

func (r *ReviewRepo) queryReviews(ctx context.Context, query string, args ...any) ([]model.Review, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, *review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}

	return reviews, nil
}

func scanReview(s scanner) (*model.Review, error) {
	var review model.Review
	var requestedAt string
	var completedAt, lastReminderAt sql.NullString

	err := s.Scan(
		&review.ID, &review.RepoFullName, &review.PRNumber, &review.Reviewer,
		&requestedAt, &completedAt, &review.ReviewURL, &lastReminderAt, &review.ReminderCount,
	)
	if err != nil {
		return nil, err
	}

	review.RequestedAt, err = parseTime(requestedAt)
	if err != nil {
		return nil, fmt.Errorf("parse requested_at: %w", err)
	}

	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		review.CompletedAt = &t
	}

	if lastReminderAt.Valid {
		t, err := parseTime(lastReminderAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_reminder_at: %w", err)
		}
		review.LastReminderAt = &t
	}

	return &review, nil
}
