package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"oipulse/pkg/errors"
)

// Limiter throttles outgoing exchange API calls
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter creates a rate limiter from a per-minute budget.
// Burst is 10% of the per-minute limit, at least 1.
func NewLimiter(name string, requestsPerMinute int) *Limiter {
	rps := float64(requestsPerMinute) / 60.0

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
	}
}

// Wait blocks until the limiter allows the request
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limiter %s", l.name)
	}
	return nil
}

// Allow reports whether a request may proceed without blocking
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
