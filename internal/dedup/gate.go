// Package dedup decides whether a freshly collected item is new enough to queue.
package dedup

import (
	"context"
	"fmt"
	"time"

	"autopost/internal/domain"
)

// Verdict is the outcome of running an item through the gate.
type Verdict string

const (
	Admitted     Verdict = "admitted"
	Seen         Verdict = "seen"
	DuplicateURL Verdict = "duplicate_url"
	Similar      Verdict = "similar"
)

type ContentStore interface {
	InsertIgnore(ctx context.Context, rec *domain.RawContent) (int64, bool, error)
	URLQueuedElsewhere(ctx context.Context, url string, contentID int64) (bool, error)
}

type QueueReader interface {
	RecentQueuedTexts(ctx context.Context, niche string, since time.Time) ([]string, error)
}

type Config struct {
	Threshold float64
	Window    time.Duration
}

// Gate runs the exact, cross-source URL and near-duplicate checks.
// Callers run Admit and NearDuplicate inside the transaction that enqueues the item.
type Gate struct {
	contents  ContentStore
	queue     QueueReader
	threshold float64
	window    time.Duration
	now       func() time.Time
}

func NewGate(contents ContentStore, queue QueueReader, cfg Config) *Gate {
	return &Gate{
		contents:  contents,
		queue:     queue,
		threshold: cfg.Threshold,
		window:    cfg.Window,
		now:       time.Now,
	}
}

// Admit records rec and reports whether it passed the exact and URL checks.
// The returned id is the stored raw content id, also for rejected items.
func (g *Gate) Admit(ctx context.Context, rec *domain.RawContent) (int64, Verdict, error) {
	id, isNew, err := g.contents.InsertIgnore(ctx, rec)
	if err != nil {
		return 0, "", fmt.Errorf("insert raw content: %w", err)
	}
	if !isNew {
		return id, Seen, nil
	}

	if rec.URL != "" {
		dup, err := g.contents.URLQueuedElsewhere(ctx, rec.URL, id)
		if err != nil {
			return id, "", fmt.Errorf("check url: %w", err)
		}
		if dup {
			return id, DuplicateURL, nil
		}
	}

	return id, Admitted, nil
}

// NearDuplicate reports whether text is too close to anything still queued
// for niche within the trailing window.
func (g *Gate) NearDuplicate(ctx context.Context, niche, text string) (bool, error) {
	since := g.now().Add(-g.window)
	texts, err := g.queue.RecentQueuedTexts(ctx, niche, since)
	if err != nil {
		return false, fmt.Errorf("load recent queue texts: %w", err)
	}

	for _, queued := range texts {
		if Ratio(text, queued) >= g.threshold {
			return true, nil
		}
	}
	return false, nil
}
