package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunCleanupDaemon runs CleanupExpired every interval until ctx is
// cancelled. Single-shot per tick, best-effort: a tick's errors are
// logged and the daemon waits for the next tick rather than retrying.
func (q *Queue) RunCleanupDaemon(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := q.CleanupExpired(ctx)
			if removed > 0 {
				q.logger.Info("cleanup evicted expired processing entries", zap.Int("count", removed))
			}
		}
	}
}
