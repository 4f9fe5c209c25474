package tasks

import (
	"context"
	"fmt"
	"time"
)

// newRetentionCleanupTask creates the scheduled task that bulk-deletes
// ledger entries older than the configured retention age. A zero retention
// age disables the task; everything is kept.
func newRetentionCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "retention_cleanup")
	maxAge := deps.Database.RetentionMaxAge

	return func(ctx context.Context) error {
		if maxAge <= 0 {
			log.DebugContext(ctx, "Retention cleanup disabled (no max age configured)")
			return nil
		}

		cutoff := time.Now().UTC().Add(-maxAge)
		log.InfoContext(ctx, "Starting scheduled retention cleanup", "cutoff", cutoff)
		startTime := time.Now()

		deleted, err := deps.Store.DeleteConversationsBefore(ctx, cutoff)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Retention cleanup task failed", "error", err, "duration", duration)
			return fmt.Errorf("retention cleanup failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled retention cleanup completed",
			"deleted", deleted, "duration", duration)
		return nil
	}
}
