package alert

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for the alert audit log
type Repository interface {
	// Insert appends an alert record
	Insert(ctx context.Context, a *Alert) error

	// ListRecent returns the latest alerts for a subscriber, newest first
	ListRecent(ctx context.Context, subscriberID uuid.UUID, limit int) ([]Alert, error)
}
