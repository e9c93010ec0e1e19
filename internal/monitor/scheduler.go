// Package monitor repeats pipeline runs on a fixed interval.
package monitor

import (
	"context"
	"log/slog"
	"time"
)

// RunFunc performs one monitoring pass.
type RunFunc func(ctx context.Context) error

// Scheduler calls a RunFunc immediately and then once per interval until
// its context is cancelled. Passes never overlap: a pass that outlasts the
// interval delays the next one.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler for interval.
func NewScheduler(interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		logger:   logger.With("component", "monitor"),
	}
}

// Start blocks until ctx is cancelled and returns the number of passes run.
// A failed pass is logged and the schedule continues.
func (s *Scheduler) Start(ctx context.Context, run RunFunc) int {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	passes := 0
	for {
		passes++
		s.logger.Info("monitoring pass starting", "pass", passes)
		if err := run(ctx); err != nil {
			s.logger.Error("monitoring pass failed", "pass", passes, "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("monitor stopped", "passes", passes)
			return passes
		case <-ticker.C:
		}
	}
}
