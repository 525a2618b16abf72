package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Source is a configured origin that a collector polls.
type Source struct {
	ID        int64          `db:"id"`
	Niche     string         `db:"niche"`
	Name      string         `db:"name"`
	Type      string         `db:"type"`
	Config    types.JSONText `db:"config"`
	Enabled   bool           `db:"enabled"`
	CreatedAt time.Time      `db:"created_at"`
}

// RawContent is the canonical shape every collector produces.
// (SourceID, ExternalID) identifies an item; it is never updated once stored.
type RawContent struct {
	ID         int64             `db:"id"`
	SourceID   int64             `db:"source_id"`
	ExternalID string            `db:"external_id"`
	Niche      string            `db:"niche"`
	Category   string            `db:"category"`
	Title      string            `db:"title"`
	URL        string            `db:"url"`
	Body       string            `db:"body"`
	ImageURL   string            `db:"image_url"`
	Author     string            `db:"author"`
	Score      int64             `db:"score"`
	Metadata   map[string]string `db:"-"`
	CreatedAt  time.Time         `db:"created_at"`
}

// Metadata keys shared between collectors and the queue service.
const (
	// MetaRepostID carries the native post id a repost signal refers to.
	MetaRepostID = "repost_id"
)
