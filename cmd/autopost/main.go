package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autopost/internal/alert"
	"autopost/internal/config"
	"autopost/internal/dedup"
	"autopost/internal/formatter"
	"autopost/internal/media"
	"autopost/internal/metrics"
	"autopost/internal/poster"
	"autopost/internal/priority"
	"autopost/internal/publisher"
	"autopost/internal/ratelimit"
	"autopost/internal/scheduler"
	"autopost/internal/service"
	"autopost/internal/source"
	sourcecollectors "autopost/internal/source/collectors"
	"autopost/internal/source/httpjson"
	"autopost/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Post events are optional; a nil interface keeps the service from publishing.
	var events service.EventPublisher
	if cfg.RabbitMQ.Enabled() {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	tmpl, err := formatter.Load(cfg.TemplatesPath, cfg.Queue.MaxTextLength, logger)
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	var alerter service.Alerter = alert.Noop{}
	if cfg.Alerts.DiscordWebhookURL != "" {
		alerter = alert.NewDiscord(cfg.Alerts.DiscordWebhookURL, cfg.Alerts.Timeout, logger)
	}

	// Initialize stores
	sourceStore := postgres.NewSourceStore(db)
	contentStore := postgres.NewContentStore(db)
	queueStore := postgres.NewQueueStore(db)
	postLogStore := postgres.NewPostLogStore(db)
	txManager := postgres.NewTransactionManager(db)

	queueService := service.NewQueueService(service.Deps{
		Contents:  contentStore,
		Queue:     queueStore,
		PostLog:   postLogStore,
		TxManager: txManager,
		Dedup: dedup.NewGate(contentStore, queueStore, dedup.Config{
			Threshold: cfg.Dedup.SimilarityThreshold,
			Window:    cfg.Dedup.SimilarityWindow,
		}),
		Rate: ratelimit.NewGate(postLogStore, ratelimit.Config{
			MinInterval: cfg.Posting.MinInterval,
			MonthlyCap:  cfg.Posting.MonthlyCap,
			WindowStart: *cfg.Posting.WindowStartHour,
			WindowEnd:   *cfg.Posting.WindowEndHour,
		}),
		Classifier: priority.New(cfg.Priorities),
		Formatter:  tmpl,
		Media: media.New(media.Config{
			Dir:       cfg.Media.Dir,
			MaxBytes:  cfg.Media.MaxBytes,
			Width:     cfg.Media.Width,
			Height:    cfg.Media.Height,
			Timeout:   cfg.Media.Timeout,
			UserAgent: cfg.HTTP.UserAgent,
		}, logger),
		Publisher: events,
		Alerter:   alerter,
		Failures:  alert.NewFailureTracker(cfg.Alerts.SourceFailureThreshold),
		Metrics:   m,
	}, service.Config{
		PostTimeout:   cfg.Posting.PostTimeout,
		Retention:     cfg.Queue.Retention,
		MediaMaxFiles: cfg.Media.MaxFiles,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(logger)
	if err := addJobs(ctx, sched, cfg, sourceStore, queueService, logger); err != nil {
		logger.Error("failed to build jobs", "error", err)
		os.Exit(1)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics server listening", "addr", cfg.Metrics.Addr)
	}

	logger.Info("starting autopost",
		"niches", len(cfg.Niches),
		"jobs", len(sched.Jobs()),
		"dry_run", cfg.Posting.DryRun,
	)
	alerter.Notify(ctx, alert.LevelSuccess, alert.Started(cfg.Posting.DryRun))

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// addJobs registers the collector jobs of every enabled source and the poster,
// stale and retention jobs.
func addJobs(
	ctx context.Context,
	sched *scheduler.Scheduler,
	cfg *config.Config,
	sources *postgres.SourceStore,
	queue *service.QueueService,
	logger *slog.Logger,
) error {
	registry := sourcecollectors.Registry()
	deps := source.Deps{
		HTTP: httpjson.Config{
			Timeout:        cfg.HTTP.Timeout,
			UserAgent:      cfg.HTTP.UserAgent,
			MaxAttempts:    cfg.HTTP.Retry.MaxAttempts,
			InitialBackoff: cfg.HTTP.Retry.InitialBackoff,
			MaxBackoff:     cfg.HTTP.Retry.MaxBackoff,
		},
		YouTubeAPIKey:      cfg.YouTube.APIKey,
		TwitterBearerToken: cfg.Twitter.BearerToken,
		Logger:             logger,
	}

	for _, niche := range cfg.Niches {
		nicheName := niche.Name

		srcs, err := sources.ListEnabled(ctx, nicheName)
		if err != nil {
			return fmt.Errorf("list sources for %s: %w", niche.Name, err)
		}

		for _, src := range srcs {
			collector, err := registry.Build(src, deps)
			if err != nil {
				logger.Warn("skipping source", "niche", niche.Name, "source", src.Name, "type", src.Type, "error", err)
				continue
			}

			if err := sched.Add(scheduler.Job{
				Name:     "collect/" + nicheName + "/" + src.Name,
				Interval: source.PollInterval(src, cfg.Queue.SourcePollDefault),
				Timeout:  cfg.Queue.JobTimeout,
				Run: func(ctx context.Context) error {
					_, err := queue.CollectAndQueue(ctx, collector, nicheName)
					return err
				},
			}); err != nil {
				return err
			}
		}
		if len(srcs) == 0 {
			logger.Warn("niche has no enabled sources", "niche", niche.Name)
		}

		transport := newTransport(cfg, niche, logger)
		if err := sched.Add(scheduler.Job{
			Name:     "post/" + nicheName,
			Interval: cfg.Posting.PollInterval,
			Timeout:  cfg.Posting.PostTimeout + time.Minute,
			Run: func(ctx context.Context) error {
				_, err := queue.PostNext(ctx, nicheName, transport)
				return err
			},
		}); err != nil {
			return err
		}
		if err := sched.Add(scheduler.Job{
			Name:     "stale/" + nicheName,
			Interval: cfg.Queue.StaleInterval,
			Run: func(ctx context.Context) error {
				_, err := queue.ExpireStale(ctx, nicheName, cfg.Queue.StaleAfter)
				return err
			},
		}); err != nil {
			return err
		}
	}

	if err := sched.Add(scheduler.Job{
		Name:     "retention",
		Interval: cfg.Queue.RetentionInterval,
		Run: func(ctx context.Context) error {
			_, err := queue.PurgeResolved(ctx)
			return err
		},
	}); err != nil {
		return err
	}
	return nil
}

func newTransport(cfg *config.Config, niche config.NicheConfig, logger *slog.Logger) service.Transport {
	if cfg.Posting.DryRun {
		return poster.NewDryRun(niche.Name, logger)
	}
	return poster.NewClient(niche.Name, poster.Credentials{
		APIKey:            niche.Credentials.APIKey,
		APISecret:         niche.Credentials.APISecret,
		AccessToken:       niche.Credentials.AccessToken,
		AccessTokenSecret: niche.Credentials.AccessTokenSecret,
	}, poster.Config{Timeout: cfg.Posting.PostTimeout}, logger)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
