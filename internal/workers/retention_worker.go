package workers

import (
	"context"
	"time"

	"oipulse/internal/domain/snapshot"
)

// RetentionWorker prunes snapshots older than the retention horizon. The
// horizon must cover the longest detection window plus slack for clock skew
// and delayed cycles, otherwise timeframe lookups would lose their baseline.
type RetentionWorker struct {
	*BaseWorker
	snapshots snapshot.Repository
	retention time.Duration
}

// NewRetentionWorker creates the pruning worker
func NewRetentionWorker(snapshots snapshot.Repository, retention time.Duration, interval time.Duration, enabled bool) *RetentionWorker {
	return &RetentionWorker{
		BaseWorker: NewBaseWorker("snapshot_retention", interval, enabled),
		snapshots:  snapshots,
		retention:  retention,
	}
}

// Run deletes everything captured before now minus the retention horizon
func (w *RetentionWorker) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.retention)

	deleted, err := w.snapshots.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.RecordError(err)
		return err
	}

	w.RecordRun()
	if deleted > 0 {
		w.Log().Infow("Old snapshots pruned", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}
