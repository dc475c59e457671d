package postgres

import (
	"context"

	"github.com/google/uuid"

	"oipulse/internal/domain/alert"
	"oipulse/pkg/errors"
)

// Compile-time check that we implement the interface
var _ alert.Repository = (*AlertRepository)(nil)

// AlertRepository implements alert.Repository using sqlx
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// Insert appends an alert record
func (r *AlertRepository) Insert(ctx context.Context, a *alert.Alert) error {
	query := `
		INSERT INTO alerts (subscriber_id, kind, symbol, message, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		a.SubscriberID, a.Kind, a.Symbol, a.Message, a.Value, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return errors.Wrap(err, "failed to insert alert")
	}
	return nil
}

// ListRecent returns the latest alerts for a subscriber, newest first
func (r *AlertRepository) ListRecent(ctx context.Context, subscriberID uuid.UUID, limit int) ([]alert.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	var alerts []alert.Alert
	query := `
		SELECT id, subscriber_id, kind, symbol, message, value, created_at
		FROM alerts
		WHERE subscriber_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &alerts, query, subscriberID, limit); err != nil {
		return nil, err
	}
	return alerts, nil
}
