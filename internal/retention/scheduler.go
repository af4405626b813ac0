package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler runs the disposal sweep on a fixed interval. It is safe to run
// one Scheduler per instance: the engine's lease guarantees only one sweep
// executes at a time across the fleet.
type Scheduler struct {
	engine   *Engine
	logger   *slog.Logger
	interval time.Duration
}

func NewScheduler(engine *Engine, logger *slog.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{engine: engine, logger: logger, interval: interval}
}

// Run blocks until ctx is cancelled. The first sweep fires after one full
// interval so a restarting fleet does not stampede.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "retention scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "retention scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.engine.ProcessExpired(ctx); err != nil {
				if errors.Is(err, ErrSweepInProgress) {
					s.logger.DebugContext(ctx, "retention sweep skipped, lease held elsewhere")
					continue
				}
				s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
			}
		}
	}
}
