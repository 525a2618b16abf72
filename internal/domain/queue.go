package domain

import (
	"strings"
	"time"
)

type QueueStatus string

const (
	QueueStatusQueued  QueueStatus = "queued"
	QueueStatusPosted  QueueStatus = "posted"
	QueueStatusSkipped QueueStatus = "skipped"
	QueueStatusFailed  QueueStatus = "failed"
)

// QueueEntry is one unit of outbound work for a niche.
type QueueEntry struct {
	ID           int64       `db:"id"`
	Niche        string      `db:"niche"`
	RawContentID *int64      `db:"raw_content_id"`
	Text         string      `db:"text"`
	MediaPath    *string     `db:"media_path"`
	Priority     int         `db:"priority"`
	Status       QueueStatus `db:"status"`
	CreatedAt    time.Time   `db:"created_at"`
	ScheduledAt  *time.Time  `db:"scheduled_at"`
	PostedAt     *time.Time  `db:"posted_at"`
}

// PostLogEntry is the append-only record of a dispatch attempt.
// A nil ExternalPostID marks a failed attempt.
type PostLogEntry struct {
	ID             int64     `db:"id"`
	QueueID        *int64    `db:"queue_id"`
	Niche          string    `db:"niche"`
	ExternalPostID *string   `db:"external_post_id"`
	Text           string    `db:"text"`
	PostedAt       time.Time `db:"posted_at"`
	Error          *string   `db:"error"`
}

const repostPrefix = "REPOST:"

// RepostText builds the queue payload asking the poster to repost an existing post.
func RepostText(postID string) string {
	return repostPrefix + postID
}

// ParseRepost reports whether text is a repost signal and returns the target id.
func ParseRepost(text string) (string, bool) {
	if !strings.HasPrefix(text, repostPrefix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimPrefix(text, repostPrefix))
	if id == "" {
		return "", false
	}
	return id, true
}
