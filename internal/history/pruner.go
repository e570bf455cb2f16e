package history

import (
	"context"
	"time"
)

// Logger is the subset of logging used by the pruner.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// RunPruner deletes history older than retention once at start and then
// every interval until ctx is cancelled.
func RunPruner(ctx context.Context, repo *SQLiteRepository, retention, interval time.Duration, logger Logger) {
	prune := func() {
		n, err := repo.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("pruning door history failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("pruned door history", "deleted", n, "retention", retention.String())
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
