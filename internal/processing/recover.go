package processing

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const recoverBatchSize = 500

// PendingLister finds articles that were created but never started.
type PendingLister interface {
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]uint, error)
}

// JobScheduler schedules a run for an article.
type JobScheduler interface {
	Schedule(ctx context.Context, articleID uint) error
}

// RecoverPending schedules a run for every article that has been pending for
// longer than olderThan, which happens when a process dies between answering
// the analyze request and starting the run. A non-positive olderThan takes
// every pending article; use it only when no other process can be creating
// articles, as at startup of the embedded single process. Starting is guarded
// on the pending status, so an article scheduled twice still runs once.
func RecoverPending(ctx context.Context, lister PendingLister, queue JobScheduler, olderThan time.Duration, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var cutoff time.Time
	if olderThan > 0 {
		cutoff = time.Now().UTC().Add(-olderThan)
	}

	ids, err := lister.StalePending(ctx, cutoff, recoverBatchSize)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, id := range ids {
		if err := queue.Schedule(ctx, id); err != nil {
			return scheduled, fmt.Errorf("failed to reschedule article %d: %w", id, err)
		}
		scheduled++
	}

	if scheduled > 0 {
		logger.Info("Rescheduled pending articles", "count", scheduled)
	}
	return scheduled, nil
}
