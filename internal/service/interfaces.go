package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"autopost/internal/alert"
	"autopost/internal/dedup"
	"autopost/internal/domain"
	"autopost/internal/formatter"
	"autopost/internal/ratelimit"
)

type ContentStore interface {
	GetExistingExternalIDs(ctx context.Context, sourceID int64, ids []string) (map[string]struct{}, error)
}

type QueueStore interface {
	Enqueue(ctx context.Context, entry *domain.QueueEntry) (int64, error)
	DequeueNext(ctx context.Context, niche string, now time.Time, limit int) ([]domain.QueueEntry, error)
	MarkPosted(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, at time.Time) error
	ExpireStale(ctx context.Context, niche string, olderThan time.Time) (int64, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostLogStore interface {
	Append(ctx context.Context, entry *domain.PostLogEntry) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	WithReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
	// Lock blocks until the named lock is held by the transaction in ctx.
	Lock(ctx context.Context, key string) error
}

type DedupGate interface {
	Admit(ctx context.Context, rec *domain.RawContent) (int64, dedup.Verdict, error)
	NearDuplicate(ctx context.Context, niche, text string) (bool, error)
}

type RateGate interface {
	Allow(ctx context.Context, niche string, prio int, now time.Time) (ratelimit.Decision, error)
}

type Classifier interface {
	Classify(category string) int
}

type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]domain.RawContent, error)
}

type Formatter interface {
	Format(rec *domain.RawContent) formatter.Result
}

type MediaPreparer interface {
	Prepare(ctx context.Context, imageURL string) (string, error)
	Cleanup(maxFiles int) (int, error)
}

// Transport posts to one niche's account.
type Transport interface {
	Post(ctx context.Context, text, mediaPath string) (string, error)
	Repost(ctx context.Context, postID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.PostEvent) error
}

type Alerter interface {
	Notify(ctx context.Context, level alert.Level, message string)
}
