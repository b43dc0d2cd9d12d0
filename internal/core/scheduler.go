package core

// scheduler.go runs periodic maintenance for session backends that cannot
// expire entries on their own.
//
// The sweeper runs once on start and then every interval until ctx is
// cancelled. A failed sweep is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes sessions created before a cutoff.
type Sweeper interface {
	Sweep(ctx context.Context, createdBefore time.Time) (int, error)
}

// Default sweep settings.
const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSweepInterval = 10 * time.Minute
)

// StartSessionSweeper deletes sessions older than ttl every interval. It
// blocks until ctx is cancelled.
func StartSessionSweeper(ctx context.Context, sw Sweeper, ttl, interval time.Duration) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	slog.Info("session sweeper started", "ttl", ttl, "interval", interval)

	runSweep(ctx, sw, ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			runSweep(ctx, sw, ttl)
		}
	}
}

func runSweep(ctx context.Context, sw Sweeper, ttl time.Duration) {
	start := time.Now()
	removed, err := sw.Sweep(ctx, start.Add(-ttl))
	if err != nil {
		slog.Error("session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("expired import sessions removed",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
