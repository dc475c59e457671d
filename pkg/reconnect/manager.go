package reconnect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
)

// Manager tracks consecutive connection failures and computes the wait
// before the next attempt: exponential backoff from a base delay up to a
// ceiling, reset to base on a successful connect.
type Manager struct {
	baseBackoff       time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	maxRetries        int // 0 = retry forever
	heartbeatTimeout  time.Duration

	mu                  sync.RWMutex
	currentBackoff      time.Duration
	consecutiveFailures int
	totalReconnects     int

	lastMessageTime atomic.Int64 // unix seconds

	logger *logger.Logger
}

// Config configures the reconnect manager
type Config struct {
	BaseBackoff       time.Duration // initial wait before a retry (e.g. 5s)
	MaxBackoff        time.Duration // backoff ceiling (e.g. 60s)
	BackoffMultiplier float64       // growth factor per consecutive failure
	MaxRetries        int           // consecutive failures before giving up (0 = unlimited)
	HeartbeatTimeout  time.Duration // max silence before the connection counts as dead
}

// NewManager creates a reconnect manager with defaults matching the
// streaming ingestor policy: 5s base, doubling, capped at 60s.
func NewManager(config Config, log *logger.Logger) *Manager {
	if config.BaseBackoff == 0 {
		config.BaseBackoff = 5 * time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 60 * time.Second
	}
	if config.BackoffMultiplier == 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.HeartbeatTimeout == 0 {
		config.HeartbeatTimeout = 90 * time.Second
	}

	return &Manager{
		baseBackoff:       config.BaseBackoff,
		maxBackoff:        config.MaxBackoff,
		backoffMultiplier: config.BackoffMultiplier,
		maxRetries:        config.MaxRetries,
		heartbeatTimeout:  config.HeartbeatTimeout,
		currentBackoff:    config.BaseBackoff,
		logger:            log,
	}
}

// RecordMessageReceived updates the last message timestamp.
// Call on every inbound message so staleness can be detected.
func (m *Manager) RecordMessageReceived() {
	m.lastMessageTime.Store(time.Now().Unix())
}

// IsHealthy reports whether the connection has produced a message recently
func (m *Manager) IsHealthy() bool {
	last := m.lastMessageTime.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(last, 0)) <= m.heartbeatTimeout
}

// ShouldRetry returns whether another reconnect attempt is allowed
func (m *Manager) ShouldRetry() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.maxRetries > 0 && m.consecutiveFailures >= m.maxRetries {
		return false
	}
	return true
}

// NextBackoff returns the wait before the next reconnect attempt
func (m *Manager) NextBackoff() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentBackoff
}

// RecordFailure registers a failed attempt and doubles the backoff up to the ceiling
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++

	next := time.Duration(float64(m.currentBackoff) * m.backoffMultiplier)
	if next > m.maxBackoff {
		next = m.maxBackoff
	}
	m.currentBackoff = next

	m.logger.Warnw("Connection attempt failed",
		"consecutive_failures", m.consecutiveFailures,
		"next_backoff", m.currentBackoff,
	)
}

// RecordSuccess registers a successful connect and resets the backoff to base
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures > 0 {
		m.logger.Infow("Connection restored, resetting backoff",
			"previous_consecutive_failures", m.consecutiveFailures,
		)
	}

	m.currentBackoff = m.baseBackoff
	m.consecutiveFailures = 0
	m.totalReconnects++
	m.lastMessageTime.Store(time.Now().Unix())
}

// Stats contains reconnection statistics
type Stats struct {
	ConsecutiveFailures int
	TotalReconnects     int
	CurrentBackoff      time.Duration
	IsHealthy           bool
}

// GetStats returns current reconnect manager stats
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		ConsecutiveFailures: m.consecutiveFailures,
		TotalReconnects:     m.totalReconnects,
		CurrentBackoff:      m.currentBackoff,
		IsHealthy:           m.IsHealthy(),
	}
}

// ReconnectWithBackoff waits the current backoff, then runs connectFn.
// It records success or failure so the next wait is scaled accordingly.
func (m *Manager) ReconnectWithBackoff(ctx context.Context, connectFn func(context.Context) error) error {
	if !m.ShouldRetry() {
		return errors.Wrapf(errors.ErrWSMaxReconnectAttempts, "%d consecutive failures", m.consecutiveFailures)
	}

	backoff := m.NextBackoff()
	if backoff > 0 {
		m.logger.Infow("Waiting before reconnect attempt", "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := connectFn(ctx); err != nil {
		m.RecordFailure()
		return errors.Wrap(err, "reconnection failed")
	}

	m.RecordSuccess()
	return nil
}
