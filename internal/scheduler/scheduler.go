// Package scheduler runs the background completion sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/service"
	"github.com/robfig/cron/v3"
)

// sweepTimeout bounds a single sweep run.
const sweepTimeout = 2 * time.Minute

// Sweeper re-evaluates the completion rule of processing distributions.
type Sweeper interface {
	SweepCompletion(ctx context.Context) (service.SweepResult, error)
}

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	log     *slog.Logger
}

// New creates a Scheduler that runs the completion sweep on schedule, a standard cron
// expression or descriptor such as "@every 5m".
func New(schedule string, sweeper Sweeper, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		log:     log,
	}

	if _, err := s.cron.AddFunc(schedule, s.RunSweep); err != nil {
		return nil, fmt.Errorf("unable to schedule completion sweep: %w", err)
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stopped before running job finished")
	}
}

// RunSweep performs one completion sweep.
func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.sweeper.SweepCompletion(ctx)
	if err != nil {
		s.log.Error("completion sweep failed", "error", err)
		return
	}

	level := slog.LevelDebug
	if res.Completed > 0 || res.NeedsAttention > 0 {
		level = slog.LevelInfo
	}
	s.log.Log(ctx, level, "completion sweep finished",
		"checked", res.Checked,
		"completed", res.Completed,
		"needs_attention", res.NeedsAttention,
		"duration", time.Since(start),
	)
}
