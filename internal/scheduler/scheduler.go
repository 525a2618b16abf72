package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultTimeout = 5 * time.Minute

// Job is a unit of periodic work. Timeout bounds a single run; zero means the
// scheduler default.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With("component", "scheduler"),
	}
}

// Add registers job. Jobs added after Start are not picked up.
func (s *Scheduler) Add(job Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", job.Name, job.Interval)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: no run function", job.Name)
	}
	if job.Timeout <= 0 {
		job.Timeout = defaultTimeout
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Start runs every job once immediately and then on its interval until ctx
// is cancelled. A failing run is logged and does not stop the job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			return s.loop(gctx, job)
		})
	}

	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, job Job) error {
	s.runJob(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(runCtx); err != nil {
		s.logger.Error("job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Debug("job completed", "job", job.Name, "duration", time.Since(start))
}
