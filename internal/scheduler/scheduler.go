// Package scheduler runs the periodic escrow jobs: gauge refresh and state checkpoints.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Second

// Jobs is the work the scheduler triggers.
type Jobs interface {
	RefreshGauges(ctx context.Context) error
	Checkpoint(ctx context.Context) error
}

// Config holds cron specs with a leading seconds field. An empty spec disables the job.
type Config struct {
	GaugesCron     string
	CheckpointCron string
}

// Scheduler manages the cron tasks.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	logger *zap.Logger
}

// New creates a Scheduler. Overlapping runs of the same job are skipped.
func New(jobs Jobs, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:   jobs,
		logger: logger,
	}
}

// Register adds the configured jobs.
func (s *Scheduler) Register(cfg Config) error {
	if cfg.GaugesCron != "" {
		if _, err := s.cron.AddFunc(cfg.GaugesCron, func() { s.run("refresh_gauges", s.jobs.RefreshGauges) }); err != nil {
			return fmt.Errorf("register gauges job: %w", err)
		}
	}
	if cfg.CheckpointCron != "" {
		if _, err := s.cron.AddFunc(cfg.CheckpointCron, func() { s.run("checkpoint", s.jobs.Checkpoint) }); err != nil {
			return fmt.Errorf("register checkpoint job: %w", err)
		}
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", s.Jobs()))
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

// RunNow executes every job once, synchronously.
func (s *Scheduler) RunNow() {
	s.run("refresh_gauges", s.jobs.RefreshGauges)
	s.run("checkpoint", s.jobs.Checkpoint)
}

func (s *Scheduler) run(name string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Debug("Scheduled job done", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}
