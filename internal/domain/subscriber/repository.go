package subscriber

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for subscriber persistence
type Repository interface {
	// Create inserts a new subscriber with default settings
	Create(ctx context.Context, s *Subscriber) error

	// GetByTelegramID returns the subscriber for a Telegram user,
	// or ErrNotFound
	GetByTelegramID(ctx context.Context, telegramID int64) (*Subscriber, error)

	// UpdateSettings replaces the stored settings blob
	UpdateSettings(ctx context.Context, id uuid.UUID, settings Settings) error

	// SetMonitoring toggles the monitoring flag
	SetMonitoring(ctx context.Context, id uuid.UUID, enabled bool) error

	// ListMonitoring returns all subscribers with monitoring enabled
	ListMonitoring(ctx context.Context) ([]Subscriber, error)
}
