package snapshot

import (
	"context"
	"time"
)

// Repository defines the interface for snapshot persistence.
// The store is append-only: snapshots are never updated in place.
type Repository interface {
	// Record appends a snapshot. Storage-layer failures are propagated.
	Record(ctx context.Context, s *Snapshot) error

	// Latest returns the most recent snapshot for symbol on exchange,
	// or ErrNotFound when no history exists.
	Latest(ctx context.Context, symbol string, exchange Exchange) (*Snapshot, error)

	// Nearest returns the snapshot whose captured_at lies within
	// [target-tolerance, target+tolerance], closest in absolute distance
	// to target. Ties resolve to the earliest captured_at. Returns
	// ErrNotFound when no snapshot qualifies.
	Nearest(ctx context.Context, symbol string, exchange Exchange, target time.Time, tolerance time.Duration) (*Snapshot, error)

	// DeleteOlderThan removes snapshots captured before cutoff and
	// returns the number of rows deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
