package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"autopost/internal/domain"
)

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

// Upsert inserts the source or refreshes its type, config and enabled flag.
// It returns the id either way.
func (s *SourceStore) Upsert(ctx context.Context, src *domain.Source) (int64, error) {
	query := `
		INSERT INTO sources (niche, name, type, config, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (niche, name) DO UPDATE SET
			type = EXCLUDED.type,
			config = EXCLUDED.config,
			enabled = EXCLUDED.enabled
		RETURNING id`

	config := src.Config
	if len(config) == 0 {
		config = []byte("{}")
	}

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		src.Niche,
		src.Name,
		src.Type,
		config,
		src.Enabled,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert source %s/%s: %w", src.Niche, src.Name, err)
	}

	return id, nil
}

// ListEnabled returns the enabled sources of a niche ordered by id.
func (s *SourceStore) ListEnabled(ctx context.Context, niche string) ([]domain.Source, error) {
	query := `
		SELECT id, niche, name, type, config, enabled, created_at
		FROM sources
		WHERE niche = $1 AND enabled
		ORDER BY id`

	var sources []domain.Source
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query, niche); err != nil {
		return nil, fmt.Errorf("list sources for %s: %w", niche, err)
	}
	return sources, nil
}
