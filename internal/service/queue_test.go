package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"autopost/internal/alert"
	"autopost/internal/dedup"
	"autopost/internal/domain"
	"autopost/internal/formatter"
	"autopost/internal/metrics"
	"autopost/internal/priority"
	"autopost/internal/ratelimit"
	"autopost/internal/service/mocks"
)

type QueueServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	contents  *mocks.MockContentStore
	queue     *mocks.MockQueueStore
	postLog   *mocks.MockPostLogStore
	txManager *mocks.MockTransactionManager
	dedup     *mocks.MockDedupGate
	rate      *mocks.MockRateGate
	formatter *mocks.MockFormatter
	media     *mocks.MockMediaPreparer
	publisher *mocks.MockEventPublisher
	alerter   *mocks.MockAlerter
	collector *mocks.MockCollector
	transport *mocks.MockTransport

	metrics *metrics.Metrics
	service *QueueService
	now     time.Time
}

func (s *QueueServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.contents = mocks.NewMockContentStore(s.ctrl)
	s.queue = mocks.NewMockQueueStore(s.ctrl)
	s.postLog = mocks.NewMockPostLogStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.dedup = mocks.NewMockDedupGate(s.ctrl)
	s.rate = mocks.NewMockRateGate(s.ctrl)
	s.formatter = mocks.NewMockFormatter(s.ctrl)
	s.media = mocks.NewMockMediaPreparer(s.ctrl)
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	s.alerter = mocks.NewMockAlerter(s.ctrl)
	s.collector = mocks.NewMockCollector(s.ctrl)
	s.transport = mocks.NewMockTransport(s.ctrl)

	s.metrics = metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewQueueService(Deps{
		Contents:   s.contents,
		Queue:      s.queue,
		PostLog:    s.postLog,
		TxManager:  s.txManager,
		Dedup:      s.dedup,
		Rate:       s.rate,
		Classifier: priority.New(nil),
		Formatter:  s.formatter,
		Media:      s.media,
		Publisher:  s.publisher,
		Alerter:    s.alerter,
		Failures:   alert.NewFailureTracker(3),
		Metrics:    s.metrics,
	}, Config{
		PostTimeout:   time.Second,
		Retention:     30 * 24 * time.Hour,
		MediaMaxFiles: 500,
	}, logger)

	s.now = time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time { return s.now }

	s.collector.EXPECT().Name().Return("pointercrate").AnyTimes()
}

func (s *QueueServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestQueueServiceTestSuite(t *testing.T) {
	suite.Run(t, new(QueueServiceTestSuite))
}

func (s *QueueServiceTestSuite) expectTx() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *QueueServiceTestSuite) expectEnqueueTx() {
	s.expectTx()
	s.txManager.EXPECT().Lock(gomock.Any(), "autopost:enqueue").Return(nil)
}

func (s *QueueServiceTestSuite) expectReadOnly() {
	s.txManager.EXPECT().WithReadOnly(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func demon() domain.RawContent {
	return domain.RawContent{
		SourceID:   1,
		ExternalID: "pc_500",
		Niche:      "geometrydash",
		Category:   "top1_verified",
		Title:      "Flamewall",
		URL:        "https://youtu.be/flamewall",
		Metadata:   map[string]string{"position": "1"},
	}
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_TopDemonIsBreaking() {
	ctx := context.Background()
	rec := demon()

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{rec}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), []string{"pc_500"}).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Text, Text: "🚨 Flamewall is the new #1"})
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(10), dedup.Admitted, nil)
	s.dedup.EXPECT().NearDuplicate(gomock.Any(), "geometrydash", "🚨 Flamewall is the new #1").Return(false, nil)
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.QueueEntry) (int64, error) {
			s.Equal("geometrydash", e.Niche)
			s.Equal(priority.Breaking, e.Priority)
			s.Require().NotNil(e.RawContentID)
			s.Equal(int64(10), *e.RawContentID)
			s.Nil(e.MediaPath)
			s.Equal(s.now, e.CreatedAt)
			return 100, nil
		},
	)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.NoError(err)
	s.Equal(1, n)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ItemsQueued.WithLabelValues("geometrydash")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ItemsCollected.WithLabelValues("geometrydash", "pointercrate")))
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_SecondRunQueuesNothing() {
	ctx := context.Background()
	rec := demon()

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{rec}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), []string{"pc_500"}).
		Return(map[string]struct{}{"pc_500": {}}, nil)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.NoError(err)
	s.Equal(0, n)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ItemsRejected.WithLabelValues("geometrydash", "seen")))
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_SeenInsideTransaction() {
	ctx := context.Background()

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{demon()}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), gomock.Any()).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Text, Text: "text"})
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(10), dedup.Seen, nil)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.NoError(err)
	s.Equal(0, n)
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_SameURLFromSecondSource() {
	ctx := context.Background()
	rec := demon()
	rec.SourceID = 2
	rec.ExternalID = "reddit_abc"

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{rec}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(2), []string{"reddit_abc"}).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Text, Text: "Flamewall clip"})
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(11), dedup.DuplicateURL, nil)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.NoError(err)
	s.Equal(0, n)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ItemsRejected.WithLabelValues("geometrydash", "duplicate_url")))
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_NearDuplicateRejected() {
	ctx := context.Background()

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{demon()}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), gomock.Any()).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Text, Text: "Flamewall is #1"})
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(10), dedup.Admitted, nil)
	s.dedup.EXPECT().NearDuplicate(gomock.Any(), "geometrydash", "Flamewall is #1").Return(true, nil)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.NoError(err)
	s.Equal(0, n)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ItemsRejected.WithLabelValues("geometrydash", "similar")))
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_UnformattableStaysSeen() {
	ctx := context.Background()

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{demon()}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), gomock.Any()).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.None})
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(10), dedup.Admitted, nil)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.NoError(err)
	s.Equal(0, n)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ItemsRejected.WithLabelValues("geometrydash", "unformatted")))
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_RepostSignal() {
	ctx := context.Background()
	rec := domain.RawContent{
		SourceID:   4,
		ExternalID: "1001",
		Category:   "robtop_tweet",
		Title:      "2.3 soon",
		URL:        "https://x.com/RobTopGames/status/1001",
		Metadata:   map[string]string{domain.MetaRepostID: "1001"},
	}

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{rec}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(4), []string{"1001"}).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Repost, RepostID: "1001"})
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(12), dedup.Admitted, nil)
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.QueueEntry) (int64, error) {
			s.Equal("REPOST:1001", e.Text)
			return 101, nil
		},
	)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.NoError(err)
	s.Equal(1, n)
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_MediaAttached() {
	ctx := context.Background()
	rec := demon()
	rec.ImageURL = "https://cdn.example.com/thumb.png"

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{rec}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), gomock.Any()).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Text, Text: "text"})
	s.media.EXPECT().Prepare(ctx, "https://cdn.example.com/thumb.png").Return("data/media/abc.jpg", nil)
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(10), dedup.Admitted, nil)
	s.dedup.EXPECT().NearDuplicate(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.QueueEntry) (int64, error) {
			s.Require().NotNil(e.MediaPath)
			s.Equal("data/media/abc.jpg", *e.MediaPath)
			return 100, nil
		},
	)

	_, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")
	s.NoError(err)
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_MediaFailureQueuesWithoutImage() {
	ctx := context.Background()
	rec := demon()
	rec.ImageURL = "https://cdn.example.com/huge.png"

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{rec}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), gomock.Any()).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Text, Text: "text"})
	s.media.EXPECT().Prepare(ctx, gomock.Any()).Return("", errors.New("image too large"))
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(10), dedup.Admitted, nil)
	s.dedup.EXPECT().NearDuplicate(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.QueueEntry) (int64, error) {
			s.Nil(e.MediaPath)
			return 100, nil
		},
	)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")
	s.NoError(err)
	s.Equal(1, n)
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_InvalidItemsDropped() {
	ctx := context.Background()

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{{SourceID: 1}}, nil)

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.NoError(err)
	s.Equal(0, n)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ItemsRejected.WithLabelValues("geometrydash", "invalid")))
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_EnqueueErrorRollsBack() {
	ctx := context.Background()

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{demon()}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), gomock.Any()).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Text, Text: "text"})
	s.expectEnqueueTx()
	s.dedup.EXPECT().Admit(gomock.Any(), gomock.Any()).Return(int64(10), dedup.Admitted, nil)
	s.dedup.EXPECT().NearDuplicate(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	s.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("connection reset"))

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.ErrorContains(err, "connection reset")
	s.Equal(0, n)
	s.Equal(0.0, testutil.ToFloat64(s.metrics.ItemsQueued.WithLabelValues("geometrydash")))
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_SourceFailureAlertsAtThreshold() {
	ctx := context.Background()
	fetchErr := errors.New("dial tcp: timeout")

	s.collector.EXPECT().Collect(ctx).Return(nil, fetchErr).Times(4)
	s.alerter.EXPECT().Notify(ctx, alert.LevelError, gomock.Any()).Times(1)

	for range 4 {
		n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")
		s.ErrorIs(err, fetchErr)
		s.Equal(0, n)
	}
	s.Equal(4.0, testutil.ToFloat64(s.metrics.SourceErrors.WithLabelValues("geometrydash", "pointercrate")))
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_SuccessResetsFailureCount() {
	ctx := context.Background()
	fetchErr := errors.New("503")

	gomock.InOrder(
		s.collector.EXPECT().Collect(ctx).Return(nil, fetchErr).Times(2),
		s.collector.EXPECT().Collect(ctx).Return(nil, nil),
		s.collector.EXPECT().Collect(ctx).Return(nil, fetchErr).Times(2),
	)

	for range 5 {
		_, _ = s.service.CollectAndQueue(ctx, s.collector, "geometrydash")
	}
}

func (s *QueueServiceTestSuite) TestCollectAndQueue_LockErrorAbortsBatch() {
	ctx := context.Background()

	s.collector.EXPECT().Collect(ctx).Return([]domain.RawContent{demon()}, nil)
	s.contents.EXPECT().GetExistingExternalIDs(ctx, int64(1), gomock.Any()).Return(map[string]struct{}{}, nil)
	s.formatter.EXPECT().Format(gomock.Any()).Return(formatter.Result{Kind: formatter.Text, Text: "text"})
	s.expectTx()
	s.txManager.EXPECT().Lock(gomock.Any(), "autopost:enqueue").Return(errors.New("lock timeout"))

	n, err := s.service.CollectAndQueue(ctx, s.collector, "geometrydash")

	s.ErrorContains(err, "lock timeout")
	s.Equal(0, n)
}

func entry(prio int) domain.QueueEntry {
	return domain.QueueEntry{
		ID:        7,
		Niche:     "geometrydash",
		Text:      "🚨 Flamewall is the new #1",
		Priority:  prio,
		Status:    domain.QueueStatusQueued,
		CreatedAt: time.Date(2026, 3, 12, 13, 0, 0, 0, time.UTC),
	}
}

func (s *QueueServiceTestSuite) TestPostNext_EmptyQueue() {
	ctx := context.Background()

	s.expectReadOnly()
	s.queue.EXPECT().DequeueNext(gomock.Any(), "geometrydash", s.now, 1).Return(nil, nil)

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.NoError(err)
	s.False(posted)
}

func (s *QueueServiceTestSuite) TestPostNext_DeferredLeavesEntryQueued() {
	ctx := context.Background()

	s.expectReadOnly()
	s.queue.EXPECT().DequeueNext(gomock.Any(), "geometrydash", s.now, 1).Return([]domain.QueueEntry{entry(5)}, nil)
	s.rate.EXPECT().Allow(gomock.Any(), "geometrydash", 5, s.now).
		Return(ratelimit.Decision{Reason: ratelimit.ReasonOutsideWindow}, nil)

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.NoError(err)
	s.False(posted)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.DispatchDeferred.WithLabelValues("geometrydash", "outside_window")))
}

func (s *QueueServiceTestSuite) TestPostNext_MonthlyCapBlocksBreaking() {
	ctx := context.Background()

	s.expectReadOnly()
	s.queue.EXPECT().DequeueNext(gomock.Any(), "geometrydash", s.now, 1).Return([]domain.QueueEntry{entry(1)}, nil)
	s.rate.EXPECT().Allow(gomock.Any(), "geometrydash", 1, s.now).
		Return(ratelimit.Decision{Reason: ratelimit.ReasonMonthlyCap}, nil)

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.NoError(err)
	s.False(posted)
}

func (s *QueueServiceTestSuite) TestPostNext_Posted() {
	ctx := context.Background()
	head := entry(1)
	media := "data/media/abc.jpg"
	head.MediaPath = &media

	s.expectReadOnly()
	s.queue.EXPECT().DequeueNext(gomock.Any(), "geometrydash", s.now, 1).Return([]domain.QueueEntry{head}, nil)
	s.rate.EXPECT().Allow(gomock.Any(), "geometrydash", 1, s.now).Return(ratelimit.Decision{Allowed: true}, nil)
	s.transport.EXPECT().Post(gomock.Any(), head.Text, media).Return("1900000000000000001", nil)
	s.expectTx()
	s.queue.EXPECT().MarkPosted(gomock.Any(), int64(7), s.now).Return(nil)
	s.postLog.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.PostLogEntry) error {
			s.Require().NotNil(e.ExternalPostID)
			s.Equal("1900000000000000001", *e.ExternalPostID)
			s.Nil(e.Error)
			s.Equal(int64(7), *e.QueueID)
			s.Equal(s.now, e.PostedAt)
			return nil
		},
	)
	s.publisher.EXPECT().Publish(ctx, domain.PostEvent{
		Action:         domain.PostActionPosted,
		Niche:          "geometrydash",
		QueueID:        7,
		ExternalPostID: "1900000000000000001",
		Text:           head.Text,
		Timestamp:      s.now,
	}).Return(nil)

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.NoError(err)
	s.True(posted)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Posts.WithLabelValues("geometrydash", "posted")))
}

func (s *QueueServiceTestSuite) TestPostNext_Repost() {
	ctx := context.Background()
	head := entry(3)
	head.Text = domain.RepostText("1001")

	s.expectReadOnly()
	s.queue.EXPECT().DequeueNext(gomock.Any(), "geometrydash", s.now, 1).Return([]domain.QueueEntry{head}, nil)
	s.rate.EXPECT().Allow(gomock.Any(), "geometrydash", 3, s.now).Return(ratelimit.Decision{Allowed: true}, nil)
	s.transport.EXPECT().Repost(gomock.Any(), "1001").Return(nil)
	s.expectTx()
	s.queue.EXPECT().MarkPosted(gomock.Any(), int64(7), s.now).Return(nil)
	s.postLog.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.NoError(err)
	s.True(posted)
}

func (s *QueueServiceTestSuite) TestPostNext_FailureMarksFailedAndAlerts() {
	ctx := context.Background()
	head := entry(5)

	s.expectReadOnly()
	s.queue.EXPECT().DequeueNext(gomock.Any(), "geometrydash", s.now, 1).Return([]domain.QueueEntry{head}, nil)
	s.rate.EXPECT().Allow(gomock.Any(), "geometrydash", 5, s.now).Return(ratelimit.Decision{Allowed: true}, nil)
	s.transport.EXPECT().Post(gomock.Any(), head.Text, "").Return("", errors.New("api status 403: duplicate content"))
	s.expectTx()
	s.queue.EXPECT().MarkFailed(gomock.Any(), int64(7), s.now).Return(nil)
	s.postLog.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.PostLogEntry) error {
			s.Nil(e.ExternalPostID)
			s.Require().NotNil(e.Error)
			s.Contains(*e.Error, "duplicate content")
			return nil
		},
	)
	s.alerter.EXPECT().Notify(ctx, alert.LevelError, gomock.Any())
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ev domain.PostEvent) error {
			s.Equal(domain.PostActionFailed, ev.Action)
			s.Contains(ev.Error, "duplicate content")
			return errors.New("channel closed")
		},
	)

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.NoError(err)
	s.False(posted)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Posts.WithLabelValues("geometrydash", "failed")))
}

func (s *QueueServiceTestSuite) TestPostNext_EmptyIDIsFailure() {
	ctx := context.Background()
	head := entry(5)

	s.expectReadOnly()
	s.queue.EXPECT().DequeueNext(gomock.Any(), gomock.Any(), gomock.Any(), 1).Return([]domain.QueueEntry{head}, nil)
	s.rate.EXPECT().Allow(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(ratelimit.Decision{Allowed: true}, nil)
	s.transport.EXPECT().Post(gomock.Any(), gomock.Any(), gomock.Any()).Return("", nil)
	s.expectTx()
	s.queue.EXPECT().MarkFailed(gomock.Any(), int64(7), s.now).Return(nil)
	s.postLog.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
	s.alerter.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any())
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.NoError(err)
	s.False(posted)
}

func (s *QueueServiceTestSuite) TestPostNext_LoadError() {
	ctx := context.Background()

	s.txManager.EXPECT().WithReadOnly(gomock.Any(), gomock.Any()).Return(errors.New("too many connections"))

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.ErrorContains(err, "load dispatch state")
	s.False(posted)
}

func (s *QueueServiceTestSuite) TestPostNext_WithoutPublisher() {
	ctx := context.Background()
	s.service.Publisher = nil

	s.expectReadOnly()
	s.queue.EXPECT().DequeueNext(gomock.Any(), gomock.Any(), gomock.Any(), 1).Return([]domain.QueueEntry{entry(1)}, nil)
	s.rate.EXPECT().Allow(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(ratelimit.Decision{Allowed: true}, nil)
	s.transport.EXPECT().Post(gomock.Any(), gomock.Any(), gomock.Any()).Return("42", nil)
	s.expectTx()
	s.queue.EXPECT().MarkPosted(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.postLog.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)

	posted, err := s.service.PostNext(ctx, "geometrydash", s.transport)

	s.NoError(err)
	s.True(posted)
}

func (s *QueueServiceTestSuite) TestExpireStale() {
	ctx := context.Background()

	s.queue.EXPECT().ExpireStale(ctx, "geometrydash", s.now.Add(-6*time.Hour)).Return(int64(3), nil)

	n, err := s.service.ExpireStale(ctx, "geometrydash", 6*time.Hour)

	s.NoError(err)
	s.Equal(int64(3), n)
	s.Equal(3.0, testutil.ToFloat64(s.metrics.QueueExpired.WithLabelValues("geometrydash")))
}

func (s *QueueServiceTestSuite) TestPurgeResolved() {
	ctx := context.Background()

	s.queue.EXPECT().DeleteResolvedBefore(ctx, s.now.Add(-30*24*time.Hour)).Return(int64(12), nil)
	s.media.EXPECT().Cleanup(500).Return(4, nil)

	n, err := s.service.PurgeResolved(ctx)

	s.NoError(err)
	s.Equal(int64(12), n)
}
