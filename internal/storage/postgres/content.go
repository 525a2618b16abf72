package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"autopost/internal/domain"
)

type ContentStore struct {
	db *sqlx.DB
}

func NewContentStore(db *sqlx.DB) *ContentStore {
	return &ContentStore{db: db}
}

// InsertIgnore stores rec unless (source_id, external_id) already exists.
// It returns the row id and whether this call inserted it.
func (s *ContentStore) InsertIgnore(ctx context.Context, rec *domain.RawContent) (int64, bool, error) {
	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return 0, false, err
	}

	query := `
		INSERT INTO raw_content (
			source_id, external_id, niche, category, title, url,
			body, image_url, author, score, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (source_id, external_id) DO NOTHING
		RETURNING id`

	exec := GetExecutor(ctx, s.db)

	var id int64
	err = exec.QueryRowxContext(ctx, query,
		rec.SourceID,
		rec.ExternalID,
		rec.Niche,
		rec.Category,
		rec.Title,
		rec.URL,
		rec.Body,
		rec.ImageURL,
		rec.Author,
		rec.Score,
		metadata,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("insert raw content %d/%s: %w", rec.SourceID, rec.ExternalID, err)
	}

	err = exec.QueryRowxContext(ctx,
		"SELECT id FROM raw_content WHERE source_id = $1 AND external_id = $2",
		rec.SourceID, rec.ExternalID,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("lookup raw content %d/%s: %w", rec.SourceID, rec.ExternalID, err)
	}

	return id, false, nil
}

// GetExistingExternalIDs returns the subset of ids already stored for the source.
func (s *ContentStore) GetExistingExternalIDs(ctx context.Context, sourceID int64, ids []string) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT external_id FROM raw_content WHERE source_id = $1 AND external_id = ANY($2)`

	var existing []string
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &existing, query, sourceID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select existing external ids: %w", err)
	}

	for _, id := range existing {
		result[id] = struct{}{}
	}
	return result, nil
}

// URLQueuedElsewhere reports whether another stored record with the same URL
// has already produced a queue entry.
func (s *ContentStore) URLQueuedElsewhere(ctx context.Context, url string, contentID int64) (bool, error) {
	if url == "" {
		return false, nil
	}

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM raw_content rc
			INNER JOIN post_queue pq ON pq.raw_content_id = rc.id
			WHERE rc.url = $1 AND rc.id <> $2
		)`

	var exists bool
	if err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, url, contentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check queued url: %w", err)
	}
	return exists, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}
