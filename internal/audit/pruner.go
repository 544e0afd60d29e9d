package audit

import (
	"context"
	"time"

	"github.com/lmittmann/tint"
)

// RunPruner deletes message rows older than retention every interval until
// ctx is done. A zero retention disables pruning.
func RunPruner(ctx context.Context, store *Store, every, retention time.Duration) {
	if retention <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneMessages(ctx, time.Now().Add(-retention))
			if err != nil {
				store.log.Error("failed to prune messages", tint.Err(err))
				continue
			}
			if n > 0 {
				store.log.Info("pruned message history", "rows", n, "retention", retention)
			}
		}
	}
}
