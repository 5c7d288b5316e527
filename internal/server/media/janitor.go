package media

import (
	"context"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/logging"
)

// Janitor periodically retries deletions left in the queue.
type Janitor struct {
	coordinator *Coordinator
	queue       DeletionQueue
	logger      logging.Logger
	interval    time.Duration
	retryDelay  time.Duration
	batch       int
}

func NewJanitor(c *Coordinator, q DeletionQueue, logger logging.Logger, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		coordinator: c,
		queue:       q,
		logger:      logger.With("module", "janitor"),
		interval:    interval,
		retryDelay:  4 * interval,
		batch:       100,
	}
}

// Sweep makes one pass over the due ids and returns how many assets were
// deleted. Ids that still fail are deferred so they do not hold back the
// rest of the queue.
func (j *Janitor) Sweep(ctx context.Context) int {
	ids, err := j.queue.Pending(ctx, j.batch)
	if err != nil {
		j.logger.Error(ctx, "listing pending deletions", "error", err)
		return 0
	}

	deleted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := j.coordinator.Delete(ctx, id); err != nil {
			j.logger.Warn(ctx, "pending deletion still failing", "asset_id", id, "error", err)
			if err := j.queue.Defer(ctx, id, j.retryDelay); err != nil {
				j.logger.Warn(ctx, "defer failed", "asset_id", id, "error", err)
			}
			continue
		}
		if err := j.queue.Ack(ctx, id); err != nil {
			j.logger.Warn(ctx, "ack failed", "asset_id", id, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		j.logger.Info(ctx, "pending deletions swept", "deleted", deleted, "seen", len(ids))
	}
	return deleted
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}
