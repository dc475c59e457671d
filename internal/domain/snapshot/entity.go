package snapshot

import "time"

// Exchange identifies the venue a snapshot was observed on.
type Exchange string

const (
	ExchangeBinance Exchange = "binance"
	ExchangeBybit   Exchange = "bybit"
)

// Valid reports whether the exchange is one of the supported venues.
func (e Exchange) Valid() bool {
	return e == ExchangeBinance || e == ExchangeBybit
}

// Snapshot is one timestamped open-interest observation for a symbol on an
// exchange. Immutable once recorded.
type Snapshot struct {
	ID           int64     `db:"id"`
	Symbol       string    `db:"symbol"`
	Exchange     Exchange  `db:"exchange"`
	OpenInterest float64   `db:"open_interest"`
	CapturedAt   time.Time `db:"captured_at"`
}

// PercentChange computes the relative change from prev to curr in percent.
// prev must have positive open interest; callers skip the comparison
// otherwise.
func PercentChange(prev, curr float64) float64 {
	return (curr - prev) / prev * 100
}
