package domain

import "time"

// CollectStats holds statistics about one collect-and-queue pass.
type CollectStats struct {
	Niche       string
	Source      string
	Fetched     int
	Invalid     int
	Known       int
	Duplicates  int
	Similar     int
	Unformatted int
	Queued      int
	Duration    time.Duration
}

type PostAction string

const (
	PostActionPosted PostAction = "posted"
	PostActionFailed PostAction = "failed"
)

// PostEvent describes the outcome of a dispatch attempt for downstream consumers.
type PostEvent struct {
	Action         PostAction `json:"action"`
	Niche          string     `json:"niche"`
	QueueID        int64      `json:"queue_id"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
	Text           string     `json:"text"`
	Error          string     `json:"error,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
