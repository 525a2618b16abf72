package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"autopost/internal/domain"
)

type PostLogStore struct {
	db *sqlx.DB
}

func NewPostLogStore(db *sqlx.DB) *PostLogStore {
	return &PostLogStore{db: db}
}

func (s *PostLogStore) Append(ctx context.Context, entry *domain.PostLogEntry) error {
	query := `
		INSERT INTO post_log (queue_id, niche, external_post_id, text, posted_at, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		entry.QueueID,
		entry.Niche,
		entry.ExternalPostID,
		entry.Text,
		entry.PostedAt,
		entry.Error,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append post log for %s: %w", entry.Niche, err)
	}
	return nil
}

// LastSuccessAt returns the time of the most recent successful post, or nil.
func (s *PostLogStore) LastSuccessAt(ctx context.Context, niche string) (*time.Time, error) {
	var last sql.NullTime
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, `
		SELECT MAX(posted_at)
		FROM post_log
		WHERE niche = $1 AND external_post_id IS NOT NULL`,
		niche,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last successful post for %s: %w", niche, err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// CountSuccessSince counts successful posts at or after since.
func (s *PostLogStore) CountSuccessSince(ctx context.Context, niche string, since time.Time) (int, error) {
	var count int
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, `
		SELECT COUNT(*)
		FROM post_log
		WHERE niche = $1 AND external_post_id IS NOT NULL AND posted_at >= $2`,
		niche, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count successful posts for %s: %w", niche, err)
	}
	return count, nil
}
