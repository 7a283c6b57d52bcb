package jobs

import (
	"context"
	"log"
	"time"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/config"
	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
)

// StartOrphanLogSweep periodically deletes attendance logs whose meeting no
// longer exists. A meeting delete removes logs first inside a transaction,
// but rows written concurrently with the delete can land after it commits;
// readers treat them as ownerless and this job cleans them up.
func StartOrphanLogSweep(ctx context.Context, cfg config.Config, store *db.Store) {
	if !cfg.OrphanSweepEnabled {
		return
	}
	interval := cfg.OrphanSweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := cfg.OrphanSweepTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				deleted, err := store.DeleteOrphanLogs(tickCtx)
				cancel()
				if err != nil {
					log.Printf("orphan log sweep error: %v", err)
					continue
				}
				if deleted > 0 {
					log.Printf("orphan log sweep removed %d rows", deleted)
				}
			}
		}
	}()
}
