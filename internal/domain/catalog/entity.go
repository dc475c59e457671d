package catalog

import "time"

// Instrument is one entry of the externally sourced instrument catalog,
// consumed read-only by the detection cycle.
type Instrument struct {
	Symbol    string  `json:"symbol"`
	Rank      int     `json:"rank"`
	MarketCap float64 `json:"market_cap"`
	Volume24h float64 `json:"volume_24h"`
}

// Listing is a full catalog fetch with its freshness timestamp
type Listing struct {
	Instruments []Instrument `json:"instruments"`
	FetchedAt   time.Time    `json:"fetched_at"`
}

// Age returns how long ago the listing was fetched
func (l *Listing) Age(now time.Time) time.Duration {
	return now.Sub(l.FetchedAt)
}

// Fresh reports whether the listing is younger than ttl
func (l *Listing) Fresh(now time.Time, ttl time.Duration) bool {
	return l.Age(now) < ttl
}
