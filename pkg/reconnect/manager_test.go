package reconnect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
)

func newTestLogger() *logger.Logger {
	zapLog, _ := zap.NewDevelopment()
	return &logger.Logger{SugaredLogger: zapLog.Sugar()}
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(Config{}, newTestLogger())

	assert.Equal(t, 5*time.Second, m.baseBackoff)
	assert.Equal(t, 60*time.Second, m.maxBackoff)
	assert.Equal(t, 2.0, m.backoffMultiplier)
	assert.Equal(t, 0, m.maxRetries)
	assert.Equal(t, 5*time.Second, m.currentBackoff)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	m := NewManager(Config{
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  60 * time.Second,
	}, newTestLogger())

	// Three consecutive failures: waits observed before each attempt are 5s, 10s, 20s
	assert.Equal(t, 5*time.Second, m.NextBackoff())
	m.RecordFailure()
	assert.Equal(t, 10*time.Second, m.NextBackoff())
	m.RecordFailure()
	assert.Equal(t, 20*time.Second, m.NextBackoff())
	m.RecordFailure()
	assert.Equal(t, 40*time.Second, m.NextBackoff())

	// Keep failing until the ceiling holds
	m.RecordFailure()
	assert.Equal(t, 60*time.Second, m.NextBackoff())
	m.RecordFailure()
	assert.Equal(t, 60*time.Second, m.NextBackoff())
}

func TestBackoffResetsOnSuccess(t *testing.T) {
	m := NewManager(Config{BaseBackoff: 5 * time.Second}, newTestLogger())

	m.RecordFailure()
	m.RecordFailure()
	require.Equal(t, 20*time.Second, m.NextBackoff())

	m.RecordSuccess()
	assert.Equal(t, 5*time.Second, m.NextBackoff())
	assert.Equal(t, 0, m.GetStats().ConsecutiveFailures)
	assert.Equal(t, 1, m.GetStats().TotalReconnects)
}

func TestShouldRetryHonorsMaxRetries(t *testing.T) {
	m := NewManager(Config{MaxRetries: 2}, newTestLogger())

	assert.True(t, m.ShouldRetry())
	m.RecordFailure()
	assert.True(t, m.ShouldRetry())
	m.RecordFailure()
	assert.False(t, m.ShouldRetry())

	// Unlimited retries by default
	m2 := NewManager(Config{}, newTestLogger())
	for i := 0; i < 50; i++ {
		m2.RecordFailure()
	}
	assert.True(t, m2.ShouldRetry())
}

func TestReconnectWithBackoffStopsAtMaxRetries(t *testing.T) {
	m := NewManager(Config{
		BaseBackoff: time.Millisecond,
		MaxRetries:  1,
	}, newTestLogger())

	attempts := 0
	err := m.ReconnectWithBackoff(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("dial refused")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)

	err = m.ReconnectWithBackoff(context.Background(), func(context.Context) error {
		attempts++
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrWSMaxReconnectAttempts))
	assert.Equal(t, 1, attempts)
}

func TestReconnectWithBackoffRespectsContext(t *testing.T) {
	m := NewManager(Config{BaseBackoff: time.Hour}, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.ReconnectWithBackoff(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsHealthy(t *testing.T) {
	m := NewManager(Config{HeartbeatTimeout: time.Minute}, newTestLogger())

	assert.False(t, m.IsHealthy())
	m.RecordMessageReceived()
	assert.True(t, m.IsHealthy())
}
