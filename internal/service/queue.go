package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autopost/internal/alert"
	"autopost/internal/dedup"
	"autopost/internal/domain"
	"autopost/internal/formatter"
	"autopost/internal/metrics"
	"autopost/internal/normalize"
	"autopost/internal/ratelimit"
)

const enqueueLock = "autopost:enqueue"

type Config struct {
	PostTimeout   time.Duration
	Retention     time.Duration
	MediaMaxFiles int
}

// Deps are the collaborators of a QueueService. Publisher may be nil.
type Deps struct {
	Contents   ContentStore
	Queue      QueueStore
	PostLog    PostLogStore
	TxManager  TransactionManager
	Dedup      DedupGate
	Rate       RateGate
	Classifier Classifier
	Formatter  Formatter
	Media      MediaPreparer
	Publisher  EventPublisher
	Alerter    Alerter
	Failures   *alert.FailureTracker
	Metrics    *metrics.Metrics
}

// QueueService moves collected items into the post queue and dispatches the
// queue head of a niche when the rate gate allows it.
type QueueService struct {
	Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewQueueService(deps Deps, cfg Config, logger *slog.Logger) *QueueService {
	return &QueueService{
		Deps:   deps,
		cfg:    cfg,
		logger: logger.With("component", "queue"),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

type candidate struct {
	rec       domain.RawContent
	result    formatter.Result
	mediaPath *string
}

// CollectAndQueue runs one pass of collector for niche and returns how many
// new entries were queued.
func (s *QueueService) CollectAndQueue(ctx context.Context, collector Collector, niche string) (int, error) {
	start := s.now()
	name := collector.Name()
	logger := s.logger.With("niche", niche, "source", name)
	stats := &domain.CollectStats{Niche: niche, Source: name}

	items, err := collector.Collect(ctx)
	if err != nil {
		s.sourceFailed(ctx, niche, name, err)
		return 0, fmt.Errorf("collect %s: %w", name, err)
	}
	s.Failures.Success(niche + "/" + name)

	stats.Fetched = len(items)
	s.Metrics.ItemsCollected.WithLabelValues(niche, name).Add(float64(len(items)))

	records := make([]domain.RawContent, 0, len(items))
	for _, item := range items {
		rec, err := normalize.Normalize(item, item.SourceID, niche)
		if err != nil {
			logger.Warn("dropping item", "error", err)
			s.Metrics.ItemsRejected.WithLabelValues(niche, "invalid").Inc()
			stats.Invalid++
			continue
		}
		records = append(records, rec)
	}

	valid := len(records)
	records, err = s.dropKnown(ctx, records)
	if err != nil {
		return 0, err
	}
	stats.Known = valid - len(records)

	if len(records) == 0 {
		s.finishCollect(logger, stats, start)
		return 0, nil
	}

	candidates := s.prepare(ctx, logger, records)

	now := s.now().UTC()
	var known, dups, similar, unformatted, queued int
	err = s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		known, dups, similar, unformatted, queued = 0, 0, 0, 0, 0

		// The URL and similarity checks read other batches' queue entries, so
		// enqueue transactions run one at a time across all sources and niches.
		if err := s.TxManager.Lock(txCtx, enqueueLock); err != nil {
			return err
		}

		for i := range candidates {
			c := &candidates[i]

			id, verdict, err := s.Dedup.Admit(txCtx, &c.rec)
			if err != nil {
				return err
			}
			switch verdict {
			case dedup.Seen:
				known++
				continue
			case dedup.DuplicateURL:
				logger.Debug("duplicate url", "external_id", c.rec.ExternalID, "url", c.rec.URL)
				dups++
				continue
			}

			var text string
			switch c.result.Kind {
			case formatter.Repost:
				text = domain.RepostText(c.result.RepostID)
			case formatter.Text:
				text = c.result.Text
				near, err := s.Dedup.NearDuplicate(txCtx, niche, text)
				if err != nil {
					return err
				}
				if near {
					logger.Debug("near duplicate", "external_id", c.rec.ExternalID)
					similar++
					continue
				}
			default:
				logger.Info("no template fits, skipping", "external_id", c.rec.ExternalID, "category", c.rec.Category)
				unformatted++
				continue
			}

			entry := &domain.QueueEntry{
				Niche:        niche,
				RawContentID: &id,
				Text:         text,
				MediaPath:    c.mediaPath,
				Priority:     s.Classifier.Classify(c.rec.Category),
				CreatedAt:    now,
			}
			if _, err := s.Queue.Enqueue(txCtx, entry); err != nil {
				return err
			}
			queued++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("queue items from %s: %w", name, err)
	}

	stats.Known += known
	stats.Duplicates = dups
	stats.Similar = similar
	stats.Unformatted = unformatted
	stats.Queued = queued
	s.finishCollect(logger, stats, start)

	return queued, nil
}

func (s *QueueService) finishCollect(logger *slog.Logger, stats *domain.CollectStats, start time.Time) {
	stats.Duration = s.now().Sub(start)
	niche := stats.Niche

	s.Metrics.ItemsRejected.WithLabelValues(niche, "seen").Add(float64(stats.Known))
	s.Metrics.ItemsRejected.WithLabelValues(niche, "duplicate_url").Add(float64(stats.Duplicates))
	s.Metrics.ItemsRejected.WithLabelValues(niche, "similar").Add(float64(stats.Similar))
	s.Metrics.ItemsRejected.WithLabelValues(niche, "unformatted").Add(float64(stats.Unformatted))
	s.Metrics.ItemsQueued.WithLabelValues(niche).Add(float64(stats.Queued))
	s.Metrics.CollectDuration.WithLabelValues(niche, stats.Source).Observe(stats.Duration.Seconds())

	logger.Info("collect completed",
		"fetched", stats.Fetched,
		"invalid", stats.Invalid,
		"known", stats.Known,
		"duplicates", stats.Duplicates,
		"similar", stats.Similar,
		"unformatted", stats.Unformatted,
		"queued", stats.Queued,
		"duration", stats.Duration,
	)
}

func (s *QueueService) sourceFailed(ctx context.Context, niche, name string, err error) {
	s.Metrics.SourceErrors.WithLabelValues(niche, name).Inc()

	failures, alertNow := s.Failures.Failure(niche + "/" + name)
	s.logger.Error("collect failed",
		"niche", niche,
		"source", name,
		"consecutive_failures", failures,
		"error", err,
	)
	if alertNow {
		s.Alerter.Notify(ctx, alert.LevelError, alert.SourceFailed(name, niche, failures, err))
	}
}

// dropKnown filters out records whose (source, external id) is already stored.
// Admit re-checks inside the transaction; this only saves formatting and media
// work for the bulk of a poll.
func (s *QueueService) dropKnown(ctx context.Context, records []domain.RawContent) ([]domain.RawContent, error) {
	bySource := make(map[int64][]string)
	for _, r := range records {
		bySource[r.SourceID] = append(bySource[r.SourceID], r.ExternalID)
	}

	existing := make(map[int64]map[string]struct{}, len(bySource))
	for sourceID, ids := range bySource {
		found, err := s.Contents.GetExistingExternalIDs(ctx, sourceID, ids)
		if err != nil {
			return nil, fmt.Errorf("load known ids: %w", err)
		}
		existing[sourceID] = found
	}

	fresh := records[:0]
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		key := fmt.Sprintf("%d/%s", r.SourceID, r.ExternalID)
		if _, ok := existing[r.SourceID][r.ExternalID]; ok || seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, r)
	}
	return fresh, nil
}

// prepare renders each record and fetches its image. Both happen before the
// enqueue transaction opens.
func (s *QueueService) prepare(ctx context.Context, logger *slog.Logger, records []domain.RawContent) []candidate {
	out := make([]candidate, 0, len(records))
	for i := range records {
		c := candidate{rec: records[i]}
		c.result = s.Formatter.Format(&c.rec)

		if c.result.Kind == formatter.Text && c.rec.ImageURL != "" && s.Media != nil {
			path, err := s.Media.Prepare(ctx, c.rec.ImageURL)
			if err != nil {
				logger.Warn("media prepare failed, queueing without image",
					"external_id", c.rec.ExternalID,
					"image_url", c.rec.ImageURL,
					"error", err,
				)
			} else if path != "" {
				c.mediaPath = &path
			}
		}
		out = append(out, c)
	}
	return out
}

// PostNext dispatches the head of niche's queue if the rate gate allows it.
// It reports whether something was posted. A gate denial leaves the entry
// queued; a post the transport rejects is recorded as failed and is not an
// error.
func (s *QueueService) PostNext(ctx context.Context, niche string, transport Transport) (bool, error) {
	lock := s.nicheLock(niche)
	lock.Lock()
	defer lock.Unlock()

	logger := s.logger.With("niche", niche)
	now := s.now().UTC()

	var head *domain.QueueEntry
	var decision ratelimit.Decision
	err := s.TxManager.WithReadOnly(ctx, func(txCtx context.Context) error {
		entries, err := s.Queue.DequeueNext(txCtx, niche, now, 1)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		head = &entries[0]

		decision, err = s.Rate.Allow(txCtx, niche, head.Priority, now)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("load dispatch state for %s: %w", niche, err)
	}
	if head == nil {
		logger.Debug("queue empty")
		return false, nil
	}
	if !decision.Allowed {
		s.Metrics.DispatchDeferred.WithLabelValues(niche, string(decision.Reason)).Inc()
		logger.Debug("dispatch deferred", "queue_id", head.ID, "priority", head.Priority, "reason", decision.Reason)
		return false, nil
	}

	externalID, postErr := s.dispatch(ctx, transport, head)
	at := s.now().UTC()

	logEntry := &domain.PostLogEntry{
		QueueID:  &head.ID,
		Niche:    niche,
		Text:     head.Text,
		PostedAt: at,
	}
	if postErr == nil {
		logEntry.ExternalPostID = &externalID
	} else {
		msg := postErr.Error()
		logEntry.Error = &msg
	}

	err = s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if postErr == nil {
			if err := s.Queue.MarkPosted(txCtx, head.ID, at); err != nil {
				return err
			}
		} else if err := s.Queue.MarkFailed(txCtx, head.ID, at); err != nil {
			return err
		}
		return s.PostLog.Append(txCtx, logEntry)
	})
	if err != nil {
		logger.Error("failed to record dispatch outcome", "queue_id", head.ID, "posted", postErr == nil, "error", err)
		return postErr == nil, fmt.Errorf("record dispatch of %d: %w", head.ID, err)
	}

	event := domain.PostEvent{
		Niche:     niche,
		QueueID:   head.ID,
		Text:      head.Text,
		Timestamp: at,
	}

	if postErr != nil {
		s.Metrics.Posts.WithLabelValues(niche, string(domain.PostActionFailed)).Inc()
		logger.Error("post failed", "queue_id", head.ID, "error", postErr)
		s.Alerter.Notify(ctx, alert.LevelError, alert.PostFailed(niche, postErr))

		event.Action = domain.PostActionFailed
		event.Error = postErr.Error()
		s.publish(ctx, event)
		return false, nil
	}

	s.Metrics.Posts.WithLabelValues(niche, string(domain.PostActionPosted)).Inc()
	logger.Info("posted", "queue_id", head.ID, "external_post_id", externalID, "priority", head.Priority)

	event.Action = domain.PostActionPosted
	event.ExternalPostID = externalID
	s.publish(ctx, event)
	return true, nil
}

// dispatch performs the network call for entry under the post timeout.
func (s *QueueService) dispatch(ctx context.Context, transport Transport, entry *domain.QueueEntry) (string, error) {
	if s.cfg.PostTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PostTimeout)
		defer cancel()
	}

	if postID, ok := domain.ParseRepost(entry.Text); ok {
		if err := transport.Repost(ctx, postID); err != nil {
			return "", fmt.Errorf("repost %s: %w", postID, err)
		}
		return postID, nil
	}

	mediaPath := ""
	if entry.MediaPath != nil {
		mediaPath = *entry.MediaPath
	}
	id, err := transport.Post(ctx, entry.Text, mediaPath)
	if err != nil {
		return "", fmt.Errorf("post: %w", err)
	}
	if id == "" {
		return "", errors.New("post: transport returned no id")
	}
	return id, nil
}

func (s *QueueService) publish(ctx context.Context, event domain.PostEvent) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish post event failed", "niche", event.Niche, "queue_id", event.QueueID, "error", err)
	}
}

func (s *QueueService) nicheLock(niche string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[niche]
	if !ok {
		l = &sync.Mutex{}
		s.locks[niche] = l
	}
	return l
}

// ExpireStale skips queued entries of niche older than maxAge.
func (s *QueueService) ExpireStale(ctx context.Context, niche string, maxAge time.Duration) (int64, error) {
	n, err := s.Queue.ExpireStale(ctx, niche, s.now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("expire stale for %s: %w", niche, err)
	}
	if n > 0 {
		s.Metrics.QueueExpired.WithLabelValues(niche).Add(float64(n))
		s.logger.Info("expired stale entries", "niche", niche, "count", n, "max_age", maxAge)
	}
	return n, nil
}

// PurgeResolved deletes finished queue rows past retention and trims the
// media cache.
func (s *QueueService) PurgeResolved(ctx context.Context) (int64, error) {
	n, err := s.Queue.DeleteResolvedBefore(ctx, s.now().UTC().Add(-s.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("purge resolved entries: %w", err)
	}

	if s.Media != nil && s.cfg.MediaMaxFiles > 0 {
		removed, err := s.Media.Cleanup(s.cfg.MediaMaxFiles)
		if err != nil {
			s.logger.Warn("media cleanup failed", "error", err)
		} else if removed > 0 {
			s.logger.Info("media cache trimmed", "removed", removed)
		}
	}

	s.logger.Info("retention pass completed", "deleted", n, "retention", s.cfg.Retention)
	return n, nil
}
