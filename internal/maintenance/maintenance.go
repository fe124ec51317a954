// Package maintenance runs periodic background tasks as Go tickers inside
// the long-running scheduler process.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes notification log rows created before a cutoff. Both log
// sinks implement it.
type Pruner interface {
	PruneLog(ctx context.Context, before time.Time) (int64, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	Interval     time.Duration
	LogRetention time.Duration
}

// Start prunes once immediately and then on every tick. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, p Pruner, cfg Config, logger *slog.Logger) {
	if cfg.Interval <= 0 || cfg.LogRetention <= 0 {
		logger.Info("Log retention disabled")
		return
	}
	logger.Info("Maintenance ticker started", "interval", cfg.Interval, "retention", cfg.LogRetention)

	t := time.NewTicker(cfg.Interval)
	defer t.Stop()

	Prune(ctx, p, cfg.LogRetention, time.Now(), logger)
	for {
		select {
		case now := <-t.C:
			Prune(ctx, p, cfg.LogRetention, now, logger)
		case <-ctx.Done():
			logger.Info("Maintenance ticker stopped")
			return
		}
	}
}

// Prune removes rows older than retention relative to now.
func Prune(ctx context.Context, p Pruner, retention time.Duration, now time.Time, logger *slog.Logger) int64 {
	n, err := p.PruneLog(ctx, now.Add(-retention))
	if err != nil {
		logger.Warn("Cleanup: failed to prune notification log", "error", err)
		return 0
	}
	if n > 0 {
		logger.Info("Cleanup: pruned notification log", "count", n)
	}
	return n
}
