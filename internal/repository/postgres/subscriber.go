package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"oipulse/internal/domain/subscriber"
	"oipulse/pkg/errors"
)

// Compile-time check that we implement the interface
var _ subscriber.Repository = (*SubscriberRepository)(nil)

// SubscriberRepository implements subscriber.Repository using sqlx
type SubscriberRepository struct {
	db DBTX
}

// NewSubscriberRepository creates a new subscriber repository
func NewSubscriberRepository(db DBTX) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Create inserts a new subscriber. Callers register users with just the
// Telegram identity filled in, so the identifier and timestamps are
// generated here when unset.
func (r *SubscriberRepository) Create(ctx context.Context, s *subscriber.Subscriber) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}

	settingsJSON, err := json.Marshal(s.Settings)
	if err != nil {
		return errors.Wrap(err, "failed to marshal settings")
	}

	query := `
		INSERT INTO subscribers (id, telegram_id, chat_id, settings, monitoring_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.TelegramID, s.ChatID, settingsJSON, s.MonitoringEnabled, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// GetByTelegramID retrieves a subscriber by Telegram ID
func (r *SubscriberRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*subscriber.Subscriber, error) {
	query := `
		SELECT id, telegram_id, chat_id, settings, monitoring_enabled, created_at, updated_at
		FROM subscribers
		WHERE telegram_id = $1`

	row := r.db.QueryRowContext(ctx, query, telegramID)
	return scanSubscriber(row)
}

// UpdateSettings replaces the stored settings blob
func (r *SubscriberRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings subscriber.Settings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to marshal settings")
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET settings = $1, updated_at = $2 WHERE id = $3`,
		settingsJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(errors.ErrNotFound, "subscriber not found")
	}
	return nil
}

// SetMonitoring toggles the monitoring flag
func (r *SubscriberRepository) SetMonitoring(ctx context.Context, id uuid.UUID, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET monitoring_enabled = $1, updated_at = $2 WHERE id = $3`,
		enabled, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(errors.ErrNotFound, "subscriber not found")
	}
	return nil
}

// ListMonitoring returns all subscribers with monitoring enabled
func (r *SubscriberRepository) ListMonitoring(ctx context.Context) ([]subscriber.Subscriber, error) {
	query := `
		SELECT id, telegram_id, chat_id, settings, monitoring_enabled, created_at, updated_at
		FROM subscribers
		WHERE monitoring_enabled = TRUE
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []subscriber.Subscriber
	for rows.Next() {
		s, err := scanSubscriberRows(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

func scanSubscriber(row *sql.Row) (*subscriber.Subscriber, error) {
	var s subscriber.Subscriber
	var settingsJSON []byte

	err := row.Scan(&s.ID, &s.TelegramID, &s.ChatID, &settingsJSON, &s.MonitoringEnabled, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "subscriber not found")
	}
	if err != nil {
		return nil, err
	}

	unmarshalSettings(settingsJSON, &s)
	return &s, nil
}

func scanSubscriberRows(rows *sql.Rows) (*subscriber.Subscriber, error) {
	var s subscriber.Subscriber
	var settingsJSON []byte

	err := rows.Scan(&s.ID, &s.TelegramID, &s.ChatID, &settingsJSON, &s.MonitoringEnabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	unmarshalSettings(settingsJSON, &s)
	return &s, nil
}

// unmarshalSettings falls back to defaults on corrupt blobs and always
// normalizes so the effective policy is complete.
func unmarshalSettings(data []byte, s *subscriber.Subscriber) {
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.Settings); err != nil {
			s.Settings = subscriber.DefaultSettings()
		}
	} else {
		s.Settings = subscriber.DefaultSettings()
	}
	s.Settings.Normalize()
}
