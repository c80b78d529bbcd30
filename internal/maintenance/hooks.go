package maintenance

import (
	"context"
	"log/slog"

	"github.com/albapepper/scoracle-settlement/internal/cache"
	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// RunRecorder persists run summaries.
type RunRecorder interface {
	Insert(ctx context.Context, run settlement.Run) error
}

// CompletionPublisher announces a finished pass to other replicas.
type CompletionPublisher interface {
	NotifySettlementCompleted(ctx context.Context, runID string) error
}

// RecordRun returns a completion hook that writes every run to the run log.
func RecordRun(runs RunRecorder, logger *slog.Logger) settlement.Hook {
	return func(ctx context.Context, run settlement.Run) {
		if err := runs.Insert(ctx, run); err != nil {
			logger.Warn("Failed to record settlement run", "run_id", run.ID, "error", err)
		}
	}
}

// InvalidateEntries returns a completion hook that drops cached entry
// responses after any pass that settled something, locally and, through
// pub, on every other replica.
func InvalidateEntries(c *cache.Cache, pub CompletionPublisher, logger *slog.Logger) settlement.Hook {
	return func(ctx context.Context, run settlement.Run) {
		if run.Settled == 0 {
			return
		}
		n := c.InvalidatePrefix(cache.PrefixEntry)
		logger.Debug("Entry cache invalidated", "run_id", run.ID, "keys", n)

		if pub == nil {
			return
		}
		if err := pub.NotifySettlementCompleted(ctx, run.ID); err != nil {
			logger.Warn("Failed to publish settlement_completed", "run_id", run.ID, "error", err)
		}
	}
}
