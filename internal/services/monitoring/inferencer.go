package monitoring

import (
	"time"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/snapshot"
)

const (
	// defaultVolumeMultiplier is a crude OI-contracts to USD proxy, not a
	// measured trade volume
	defaultVolumeMultiplier = 50000.0

	// highConfidenceRatio scales the drop threshold into the high tier
	highConfidenceRatio = 1.5
)

// Inferencer classifies a sharp open-interest contraction as a probable
// forced deleveraging. OI alone cannot separate short-covering from long
// liquidation, so the inferred side is always long.
type Inferencer struct {
	volumeMultiplier float64
	confidenceRatio  float64
}

// NewInferencer creates an inferencer with the given OI-to-USD multiplier.
func NewInferencer(volumeMultiplier float64) *Inferencer {
	if volumeMultiplier <= 0 {
		volumeMultiplier = defaultVolumeMultiplier
	}
	return &Inferencer{
		volumeMultiplier: volumeMultiplier,
		confidenceRatio:  highConfidenceRatio,
	}
}

// Infer returns an inferred-liquidation event when the move from prev to
// curr clears the drop threshold, or nil. Never fires on zero or positive
// change, or when prev has no positive value to compare against.
func (i *Inferencer) Infer(symbol string, exchange snapshot.Exchange, prev, curr, dropThresholdPercent float64, observedAt time.Time) *alert.ChangeEvent {
	if prev <= 0 || dropThresholdPercent <= 0 {
		return nil
	}

	pct := snapshot.PercentChange(prev, curr)
	if pct > -dropThresholdPercent {
		return nil
	}

	confidence := alert.ConfidenceMedium
	if -pct >= i.confidenceRatio*dropThresholdPercent {
		confidence = alert.ConfidenceHigh
	}

	return &alert.ChangeEvent{
		Symbol:          symbol,
		Exchange:        exchange,
		Kind:            alert.KindInferredLiquidation,
		Direction:       alert.DirectionDecrease,
		PercentChange:   pct,
		CurrentValue:    curr,
		PreviousValue:   prev,
		Side:            alert.SideLong,
		Confidence:      confidence,
		EstimatedVolume: (prev - curr) * i.volumeMultiplier,
		ObservedAt:      observedAt,
	}
}
