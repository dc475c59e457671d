package postgres

import (
	"context"
	"database/sql"
	"time"

	"oipulse/internal/domain/snapshot"
	"oipulse/pkg/errors"
)

// Compile-time check that we implement the interface
var _ snapshot.Repository = (*SnapshotRepository)(nil)

// SnapshotRepository implements snapshot.Repository using sqlx
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Record appends a snapshot
func (r *SnapshotRepository) Record(ctx context.Context, s *snapshot.Snapshot) error {
	query := `
		INSERT INTO oi_snapshots (symbol, exchange, open_interest, captured_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		s.Symbol, s.Exchange, s.OpenInterest, s.CapturedAt,
	).Scan(&s.ID)
	if err != nil {
		return errors.Wrap(err, "failed to record snapshot")
	}
	return nil
}

// Latest returns the most recent snapshot for symbol on exchange
func (r *SnapshotRepository) Latest(ctx context.Context, symbol string, exchange snapshot.Exchange) (*snapshot.Snapshot, error) {
	var s snapshot.Snapshot

	query := `
		SELECT id, symbol, exchange, open_interest, captured_at
		FROM oi_snapshots
		WHERE symbol = $1 AND exchange = $2
		ORDER BY captured_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &s, query, symbol, exchange)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "no snapshot history")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Nearest returns the snapshot closest to target within tolerance.
// Ties on distance resolve to the earliest captured_at.
func (r *SnapshotRepository) Nearest(ctx context.Context, symbol string, exchange snapshot.Exchange, target time.Time, tolerance time.Duration) (*snapshot.Snapshot, error) {
	var s snapshot.Snapshot

	query := `
		SELECT id, symbol, exchange, open_interest, captured_at
		FROM oi_snapshots
		WHERE symbol = $1 AND exchange = $2
		  AND captured_at BETWEEN $3 AND $4
		ORDER BY ABS(EXTRACT(EPOCH FROM (captured_at - $5::timestamptz))), captured_at ASC
		LIMIT 1`

	err := r.db.GetContext(ctx, &s, query,
		symbol, exchange, target.Add(-tolerance), target.Add(tolerance), target,
	)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "no snapshot within tolerance")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteOlderThan removes snapshots captured before cutoff
func (r *SnapshotRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM oi_snapshots WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete old snapshots")
	}
	return res.RowsAffected()
}
