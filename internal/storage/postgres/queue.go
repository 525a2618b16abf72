package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"autopost/internal/domain"
)

const queueColumns = `id, niche, raw_content_id, text, media_path, priority, status, created_at, scheduled_at, posted_at`

type QueueStore struct {
	db *sqlx.DB
}

func NewQueueStore(db *sqlx.DB) *QueueStore {
	return &QueueStore{db: db}
}

// Enqueue inserts entry with status queued and returns its id.
// CreatedAt must be set by the caller.
func (s *QueueStore) Enqueue(ctx context.Context, entry *domain.QueueEntry) (int64, error) {
	query := `
		INSERT INTO post_queue (
			niche, raw_content_id, text, media_path, priority, status, created_at, scheduled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		entry.Niche,
		entry.RawContentID,
		entry.Text,
		entry.MediaPath,
		entry.Priority,
		domain.QueueStatusQueued,
		entry.CreatedAt,
		entry.ScheduledAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue for %s: %w", entry.Niche, err)
	}

	entry.ID = id
	entry.Status = domain.QueueStatusQueued
	return id, nil
}

// DequeueNext returns up to limit due entries, most urgent first and oldest first
// within a priority.
func (s *QueueStore) DequeueNext(ctx context.Context, niche string, now time.Time, limit int) ([]domain.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM post_queue
		WHERE niche = $1
			AND status = 'queued'
			AND (scheduled_at IS NULL OR scheduled_at <= $2)
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT $3`

	var entries []domain.QueueEntry
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries, query, niche, now, limit); err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", niche, err)
	}
	return entries, nil
}

// RecentQueuedTexts returns the text of entries still queued that were created at
// or after since.
func (s *QueueStore) RecentQueuedTexts(ctx context.Context, niche string, since time.Time) ([]string, error) {
	query := `
		SELECT text
		FROM post_queue
		WHERE niche = $1 AND status = 'queued' AND created_at >= $2`

	var texts []string
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &texts, query, niche, since); err != nil {
		return nil, fmt.Errorf("recent queued texts for %s: %w", niche, err)
	}
	return texts, nil
}

func (s *QueueStore) MarkPosted(ctx context.Context, id int64, at time.Time) error {
	return s.setStatus(ctx, id, domain.QueueStatusPosted, &at)
}

func (s *QueueStore) MarkFailed(ctx context.Context, id int64, at time.Time) error {
	return s.setStatus(ctx, id, domain.QueueStatusFailed, &at)
}

func (s *QueueStore) setStatus(ctx context.Context, id int64, status domain.QueueStatus, at *time.Time) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE post_queue SET status = $1, posted_at = $2 WHERE id = $3",
		status, at, id,
	)
	if err != nil {
		return fmt.Errorf("mark %d %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark %d %s: %w", id, status, err)
	}
	if n == 0 {
		return fmt.Errorf("mark %d %s: queue entry not found", id, status)
	}
	return nil
}

// ExpireStale moves queued entries created at or before olderThan to skipped.
func (s *QueueStore) ExpireStale(ctx context.Context, niche string, olderThan time.Time) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE post_queue
		SET status = 'skipped'
		WHERE niche = $1 AND status = 'queued' AND created_at <= $2`,
		niche, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("expire stale for %s: %w", niche, err)
	}
	return res.RowsAffected()
}

// DeleteResolvedBefore removes posted, skipped and failed entries created before cutoff.
func (s *QueueStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM post_queue WHERE status <> 'queued' AND created_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete resolved queue entries: %w", err)
	}
	return res.RowsAffected()
}
