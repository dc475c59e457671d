package alert

import (
	"time"

	"github.com/google/uuid"

	"oipulse/internal/domain/snapshot"
)

// Kind classifies a detection event
type Kind string

const (
	// KindChange is a timeframe-scoped open-interest percent change
	KindChange Kind = "change"
	// KindInferredLiquidation is a heuristic liquidation inferred from a
	// sharp OI contraction
	KindInferredLiquidation Kind = "inferred_liquidation"
)

// Direction of an open-interest move
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// Confidence tier for inferred liquidations
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Side of an inferred liquidation. OI contraction alone cannot separate
// short-covering from long liquidation, so the model only ever infers long.
type Side string

const (
	SideLong Side = "long"
)

// ChangeEvent is one classified detection result. Events are produced per
// cycle, consumed once by the dispatcher and kept only in the audit log.
type ChangeEvent struct {
	Symbol   string
	Exchange snapshot.Exchange
	Kind     Kind

	// Timeframe name, set for Kind == KindChange
	Timeframe string

	Direction     Direction
	PercentChange float64
	CurrentValue  float64
	PreviousValue float64

	// Inferred-liquidation fields, set for Kind == KindInferredLiquidation
	Side            Side
	Confidence      Confidence
	EstimatedVolume float64

	// Source marks whether this came from a polling cycle or the live stream
	Source string

	ObservedAt time.Time
}

// Increase reports whether the event describes a rising open interest
func (e *ChangeEvent) Increase() bool {
	return e.Direction == DirectionIncrease
}

// Alert is the audit-log record of a delivered (or attempted) event
type Alert struct {
	ID           int64     `db:"id"`
	SubscriberID uuid.UUID `db:"subscriber_id"`
	Kind         Kind      `db:"kind"`
	Symbol       string    `db:"symbol"`
	Message      string    `db:"message"`
	Value        float64   `db:"value"`
	CreatedAt    time.Time `db:"created_at"`
}
