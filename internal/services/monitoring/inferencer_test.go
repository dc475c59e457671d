package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/snapshot"
)

func TestInferNeverFiresOnFlatOrRisingOI(t *testing.T) {
	inf := NewInferencer(50000)
	now := time.Now()

	assert.Nil(t, inf.Infer("BTCUSDT", snapshot.ExchangeBinance, 100000, 100000, 8.0, now))
	assert.Nil(t, inf.Infer("BTCUSDT", snapshot.ExchangeBinance, 100000, 120000, 8.0, now))
	assert.Nil(t, inf.Infer("BTCUSDT", snapshot.ExchangeBinance, 0, 90000, 8.0, now))
}

func TestInferNeverFiresBelowThreshold(t *testing.T) {
	inf := NewInferencer(50000)

	// 7% drop against an 8% threshold
	ev := inf.Infer("BTCUSDT", snapshot.ExchangeBinance, 100000, 93000, 8.0, time.Now())
	assert.Nil(t, ev)
}

func TestInferMediumConfidence(t *testing.T) {
	inf := NewInferencer(50000)

	// previous 107,000 -> current 100,000 with threshold 5 is a -6.54%
	// move: above threshold, below the 1.5x high tier (7.5)
	ev := inf.Infer("BTCUSDT", snapshot.ExchangeBinance, 107000, 100000, 5.0, time.Now())
	require.NotNil(t, ev)

	assert.Equal(t, alert.KindInferredLiquidation, ev.Kind)
	assert.Equal(t, alert.SideLong, ev.Side)
	assert.Equal(t, alert.ConfidenceMedium, ev.Confidence)
	assert.InDelta(t, -6.54, ev.PercentChange, 0.01)
	assert.InDelta(t, 7000*50000, ev.EstimatedVolume, 0.001)
}

func TestInferHighConfidence(t *testing.T) {
	inf := NewInferencer(50000)

	// -13% against a 8% threshold clears 1.5x = 12
	ev := inf.Infer("ETHUSDT", snapshot.ExchangeBinance, 100000, 87000, 8.0, time.Now())
	require.NotNil(t, ev)
	assert.Equal(t, alert.ConfidenceHigh, ev.Confidence)
}

func TestInferHighConfidenceBoundary(t *testing.T) {
	inf := NewInferencer(50000)

	// exactly 1.5x the threshold lands in the high tier
	ev := inf.Infer("SOLUSDT", snapshot.ExchangeBinance, 100000, 88000, 8.0, time.Now())
	require.NotNil(t, ev)
	assert.Equal(t, alert.ConfidenceHigh, ev.Confidence)
}

func TestInferDefaultsMultiplier(t *testing.T) {
	inf := NewInferencer(0)

	ev := inf.Infer("BTCUSDT", snapshot.ExchangeBinance, 100000, 80000, 8.0, time.Now())
	require.NotNil(t, ev)
	assert.InDelta(t, 20000*50000.0, ev.EstimatedVolume, 0.001)
}
