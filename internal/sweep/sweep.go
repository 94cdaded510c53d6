// Package sweep runs drift reconciliation on a ticker, at most once per interval across instances
// that share the cache.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"messenger/internal/cache"
	"messenger/internal/dto"
)

const lastRunKey = "sweep:last-run"

type Sweeper interface {
	Sweep(ctx context.Context) ([]dto.SweepReport, error)
}

type Scheduler struct {
	sweeper  Sweeper
	gate     cache.Store
	interval time.Duration
	tick     time.Duration
	log      *slog.Logger
}

const (
	defaultInterval = 10 * time.Minute
	defaultTick     = time.Minute
)

// NewScheduler replaces a non-positive interval or tick with its default.
func NewScheduler(s Sweeper, gate cache.Store, interval, tick time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if tick <= 0 {
		tick = defaultTick
	}
	return &Scheduler{sweeper: s, gate: gate, interval: interval, tick: tick, log: log.With("component", "sweep")}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	s.log.Info("drift sweep scheduled", "interval", s.interval, "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps if the last-run key is free and reports whether it ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	ok, err := s.gate.SetIfAbsent(ctx, lastRunKey, s.interval)
	if err != nil {
		s.log.Warn("sweep gate unavailable", "err", err)
		return false
	}
	if !ok {
		return false
	}
	start := time.Now()
	reports, err := s.sweeper.Sweep(ctx)
	for _, r := range reports {
		s.log.Info("drift sweep finished",
			"direction", r.Direction,
			"checked", r.Checked,
			"deactivated", r.Deactivated,
			"disabled", r.Disabled,
			"skipped", r.Skipped,
		)
	}
	if err != nil {
		s.log.Error("drift sweep failed", "err", err, "duration", time.Since(start))
	}
	return true
}
