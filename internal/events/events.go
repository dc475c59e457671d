// Package events carries live open-interest updates from the stream reader
// to the monitoring coordinator through a bounded in-process queue.
package events

import (
	"time"

	"oipulse/internal/domain/snapshot"
)

// LiveUpdate is one materialized open-interest move observed on the stream
type LiveUpdate struct {
	Symbol        string
	Exchange      snapshot.Exchange
	Previous      float64
	Current       float64
	PercentChange float64
	ObservedAt    time.Time
}

// Increase reports whether open interest rose
func (u *LiveUpdate) Increase() bool {
	return u.PercentChange > 0
}
