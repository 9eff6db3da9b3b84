package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper defines the interface for registry cleanup operations.
type Sweeper interface {
	Sweep(maxAge time.Duration) int
}

// Scheduler periodically sweeps old terminal packages out of the engine's
// in-memory registry.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
}

func NewScheduler(sweeper Sweeper, interval, maxAge time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("cleanup scheduler started",
		"interval", s.interval,
		"max_age", s.maxAge,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if removed := s.sweeper.Sweep(s.maxAge); removed > 0 {
				s.logger.Info("cleanup pass complete", "removed", removed)
			}
		}
	}
}
