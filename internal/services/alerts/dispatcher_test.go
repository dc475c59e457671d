package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/snapshot"
	"oipulse/internal/domain/subscriber"
	"oipulse/internal/testsupport"
	"oipulse/pkg/errors"
	"oipulse/pkg/telegram"
)

type captureMessenger struct {
	mu       sync.Mutex
	messages []string
	chatIDs  []int64
	err      error
}

func (m *captureMessenger) SendMessageWithOptions(chatID int64, text string, opts telegram.MessageOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, text)
	m.chatIDs = append(m.chatIDs, chatID)
	return nil
}

func changeEvent(symbol, timeframe string, pct float64) alert.ChangeEvent {
	direction := alert.DirectionIncrease
	if pct < 0 {
		direction = alert.DirectionDecrease
	}
	return alert.ChangeEvent{
		Symbol:        symbol,
		Exchange:      snapshot.ExchangeBinance,
		Kind:          alert.KindChange,
		Timeframe:     timeframe,
		Direction:     direction,
		PercentChange: pct,
		CurrentValue:  100000,
		PreviousValue: 95000,
		ObservedAt:    time.Now().UTC(),
	}
}

func liquidationEvent(symbol string, pct, volume float64, confidence alert.Confidence) alert.ChangeEvent {
	return alert.ChangeEvent{
		Symbol:          symbol,
		Exchange:        snapshot.ExchangeBinance,
		Kind:            alert.KindInferredLiquidation,
		Direction:       alert.DirectionDecrease,
		PercentChange:   pct,
		Side:            alert.SideLong,
		Confidence:      confidence,
		EstimatedVolume: volume,
		ObservedAt:      time.Now().UTC(),
	}
}

func testSubscriber() *subscriber.Subscriber {
	return &subscriber.Subscriber{
		ID:       uuid.New(),
		ChatID:   42,
		Settings: subscriber.DefaultSettings(),
	}
}

func TestDeliverGroupsByTimeframe(t *testing.T) {
	messenger := &captureMessenger{}
	d := NewDispatcher(messenger, testsupport.NewAlertLog(), Config{Pacing: time.Millisecond})

	evs := []alert.ChangeEvent{
		changeEvent("BTCUSDT", "15min", 2.5),
		changeEvent("ETHUSDT", "15min", -3.1),
		changeEvent("BTCUSDT", "1hour", 6.2),
	}

	require.NoError(t, d.Deliver(context.Background(), testSubscriber(), evs))

	require.Len(t, messenger.messages, 2)
	assert.Contains(t, messenger.messages[0], "15 minutes")
	assert.Contains(t, messenger.messages[0], "BTCUSDT")
	assert.Contains(t, messenger.messages[0], "ETHUSDT")
	assert.Contains(t, messenger.messages[1], "1 hour")
}

func TestDeliverLiquidationsInSeparateMessage(t *testing.T) {
	messenger := &captureMessenger{}
	d := NewDispatcher(messenger, testsupport.NewAlertLog(), Config{Pacing: time.Millisecond})

	evs := []alert.ChangeEvent{
		changeEvent("BTCUSDT", "15min", 2.5),
		liquidationEvent("SOLUSDT", -9.2, 4.6e8, alert.ConfidenceMedium),
	}

	require.NoError(t, d.Deliver(context.Background(), testSubscriber(), evs))

	require.Len(t, messenger.messages, 2)
	assert.Contains(t, messenger.messages[1], "Estimated Liquidations")
	assert.Contains(t, messenger.messages[1], "SOLUSDT")
	assert.Contains(t, messenger.messages[1], "LONG")
}

func TestDeliverCapsLinesAndReportsRemainder(t *testing.T) {
	messenger := &captureMessenger{}
	d := NewDispatcher(messenger, testsupport.NewAlertLog(), Config{MaxLinesPerGroup: 10, Pacing: time.Millisecond})

	var evs []alert.ChangeEvent
	for i := 0; i < 17; i++ {
		evs = append(evs, changeEvent(fmt.Sprintf("SYM%dUSDT", i), "15min", 3.0))
	}

	require.NoError(t, d.Deliver(context.Background(), testSubscriber(), evs))

	require.Len(t, messenger.messages, 1)
	msg := messenger.messages[0]

	// shown + K == total
	assert.Equal(t, 10, strings.Count(msg, "📈"))
	assert.Contains(t, msg, "+7 more")
}

func TestDeliverNoRemainderLineWhenUnderCap(t *testing.T) {
	messenger := &captureMessenger{}
	d := NewDispatcher(messenger, testsupport.NewAlertLog(), Config{MaxLinesPerGroup: 10, Pacing: time.Millisecond})

	evs := []alert.ChangeEvent{changeEvent("BTCUSDT", "15min", 2.0)}
	require.NoError(t, d.Deliver(context.Background(), testSubscriber(), evs))

	assert.NotContains(t, messenger.messages[0], "more")
}

func TestDeliverEmptyBatchSendsNothing(t *testing.T) {
	messenger := &captureMessenger{}
	d := NewDispatcher(messenger, testsupport.NewAlertLog(), Config{})

	require.NoError(t, d.Deliver(context.Background(), testSubscriber(), nil))
	assert.Empty(t, messenger.messages)
}

func TestDeliverFailureWrapsDeliveryError(t *testing.T) {
	messenger := &captureMessenger{err: errors.New("telegram: 429")}
	d := NewDispatcher(messenger, testsupport.NewAlertLog(), Config{Pacing: time.Millisecond})

	err := d.Deliver(context.Background(), testSubscriber(), []alert.ChangeEvent{
		changeEvent("BTCUSDT", "15min", 2.5),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDeliveryFailed))
}

func TestDeliverWritesAuditLog(t *testing.T) {
	messenger := &captureMessenger{}
	audit := testsupport.NewAlertLog()
	d := NewDispatcher(messenger, audit, Config{Pacing: time.Millisecond})

	sub := testSubscriber()
	evs := []alert.ChangeEvent{
		changeEvent("BTCUSDT", "15min", 2.5),
		liquidationEvent("SOLUSDT", -9.2, 4.6e8, alert.ConfidenceHigh),
	}

	require.NoError(t, d.Deliver(context.Background(), sub, evs))

	rows := audit.All()
	require.Len(t, rows, 2)
	assert.Equal(t, alert.KindChange, rows[0].Kind)
	assert.InDelta(t, 2.5, rows[0].Value, 0.001)
	assert.Equal(t, alert.KindInferredLiquidation, rows[1].Kind)
	assert.InDelta(t, 4.6e8, rows[1].Value, 0.001)
	assert.Equal(t, sub.ID, rows[1].SubscriberID)
}

func TestBuildMessagesGroupCountAcrossCaps(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		maxLines int
		wantMore string
	}{
		{"exactly at cap", 10, 10, ""},
		{"one over cap", 11, 10, "+1 more"},
		{"small cap", 5, 3, "+2 more"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var evs []alert.ChangeEvent
			for i := 0; i < tt.total; i++ {
				evs = append(evs, changeEvent(fmt.Sprintf("S%dUSDT", i), "30min", 4.0))
			}

			messages := BuildMessages(evs, tt.maxLines)
			require.Len(t, messages, 1)

			if tt.wantMore == "" {
				assert.NotContains(t, messages[0], "more")
			} else {
				assert.Contains(t, messages[0], tt.wantMore)
			}
		})
	}
}
