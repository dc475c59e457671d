// Package testsupport provides in-memory repository implementations for
// unit tests that exercise detection and dispatch logic without a database.
package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/snapshot"
	"oipulse/internal/domain/subscriber"
	"oipulse/pkg/errors"
)

// SnapshotStore is an in-memory snapshot.Repository
type SnapshotStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   []snapshot.Snapshot
}

var _ snapshot.Repository = (*SnapshotStore)(nil)

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Record appends a snapshot.
func (s *SnapshotStore) Record(ctx context.Context, snap *snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := *snap
	stored.ID = s.nextID
	s.rows = append(s.rows, stored)
	snap.ID = stored.ID
	return nil
}

// Latest returns the most recent snapshot for symbol/exchange.
func (s *SnapshotStore) Latest(ctx context.Context, symbol string, exchange snapshot.Exchange) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *snapshot.Snapshot
	for i := range s.rows {
		row := &s.rows[i]
		if row.Symbol != symbol || row.Exchange != exchange {
			continue
		}
		if best == nil || row.CapturedAt.After(best.CapturedAt) {
			best = row
		}
	}
	if best == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "no snapshots for %s/%s", symbol, exchange)
	}
	out := *best
	return &out, nil
}

// Nearest returns the minimal-distance snapshot within the tolerance
// window around target; ties resolve to the earliest captured_at.
func (s *SnapshotStore) Nearest(ctx context.Context, symbol string, exchange snapshot.Exchange, target time.Time, tolerance time.Duration) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []snapshot.Snapshot
	for _, row := range s.rows {
		if row.Symbol != symbol || row.Exchange != exchange {
			continue
		}
		d := row.CapturedAt.Sub(target)
		if d < 0 {
			d = -d
		}
		if d <= tolerance {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "no snapshot near %s for %s/%s", target, symbol, exchange)
	}

	sort.Slice(candidates, func(i, j int) bool {
		di := absDuration(candidates[i].CapturedAt.Sub(target))
		dj := absDuration(candidates[j].CapturedAt.Sub(target))
		if di != dj {
			return di < dj
		}
		return candidates[i].CapturedAt.Before(candidates[j].CapturedAt)
	})

	out := candidates[0]
	return &out, nil
}

// DeleteOlderThan removes snapshots captured before cutoff.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[:0]
	var deleted int64
	for _, row := range s.rows {
		if row.CapturedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return deleted, nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// SubscriberStore is an in-memory subscriber.Repository
type SubscriberStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]subscriber.Subscriber
}

var _ subscriber.Repository = (*SubscriberStore)(nil)

// NewSubscriberStore creates an empty store.
func NewSubscriberStore() *SubscriberStore {
	return &SubscriberStore{rows: make(map[uuid.UUID]subscriber.Subscriber)}
}

// Create inserts a subscriber.
func (s *SubscriberStore) Create(ctx context.Context, sub *subscriber.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	for _, row := range s.rows {
		if row.TelegramID == sub.TelegramID {
			return errors.Wrapf(errors.ErrAlreadyExists, "telegram id %d", sub.TelegramID)
		}
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.rows[sub.ID] = *sub
	return nil
}

// GetByTelegramID looks a subscriber up by Telegram user id.
func (s *SubscriberStore) GetByTelegramID(ctx context.Context, telegramID int64) (*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.rows {
		if row.TelegramID == telegramID {
			out := row
			return &out, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "telegram id %d", telegramID)
}

// UpdateSettings replaces the settings blob.
func (s *SubscriberStore) UpdateSettings(ctx context.Context, id uuid.UUID, settings subscriber.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "subscriber %s", id)
	}
	row.Settings = settings
	row.UpdatedAt = time.Now().UTC()
	s.rows[id] = row
	return nil
}

// SetMonitoring toggles the monitoring flag.
func (s *SubscriberStore) SetMonitoring(ctx context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "subscriber %s", id)
	}
	row.MonitoringEnabled = enabled
	row.UpdatedAt = time.Now().UTC()
	s.rows[id] = row
	return nil
}

// ListMonitoring returns subscribers with monitoring enabled.
func (s *SubscriberStore) ListMonitoring(ctx context.Context) ([]subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []subscriber.Subscriber
	for _, row := range s.rows {
		if row.MonitoringEnabled {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

// AlertLog is an in-memory alert.Repository
type AlertLog struct {
	mu     sync.RWMutex
	nextID int64
	rows   []alert.Alert
}

var _ alert.Repository = (*AlertLog)(nil)

// NewAlertLog creates an empty log.
func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

// Insert appends an alert record.
func (l *AlertLog) Insert(ctx context.Context, a *alert.Alert) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	stored := *a
	stored.ID = l.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	l.rows = append(l.rows, stored)
	a.ID = stored.ID
	return nil
}

// ListRecent returns the latest alerts for a subscriber, newest first.
func (l *AlertLog) ListRecent(ctx context.Context, subscriberID uuid.UUID, limit int) ([]alert.Alert, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []alert.Alert
	for _, row := range l.rows {
		if row.SubscriberID == subscriberID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored alert.
func (l *AlertLog) All() []alert.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]alert.Alert, len(l.rows))
	copy(out, l.rows)
	return out
}
