package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/subscriber"
	"oipulse/internal/testsupport"
	"oipulse/pkg/logger"
	"oipulse/pkg/telegram"
)

type fakeBot struct {
	mu       sync.Mutex
	messages []string
	chatIDs  []int64
}

func (b *fakeBot) Start(ctx context.Context) error { return nil }

func (b *fakeBot) Stop() {}

func (b *fakeBot) SetHandler(handler func(telegram.Update)) {}

func (b *fakeBot) SendMessage(chatID int64, text string) error {
	return b.SendMessageWithOptions(chatID, text, telegram.MessageOptions{})
}

func (b *fakeBot) SendMessageWithOptions(chatID int64, text string, opts telegram.MessageOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, text)
	b.chatIDs = append(b.chatIDs, chatID)
	return nil
}

func (b *fakeBot) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.messages))
	copy(out, b.messages)
	return out
}

type botFixture struct {
	handler     *Handler
	bot         *fakeBot
	subscribers *testsupport.SubscriberStore
	alerts      *testsupport.AlertLog
	queue       *telegram.AsyncMessageQueue
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()

	bot := &fakeBot{}
	queue := telegram.NewAsyncMessageQueue(bot, 1, time.Millisecond, logger.Get())
	queue.Start()
	t.Cleanup(queue.Stop)

	subscribers := testsupport.NewSubscriberStore()
	alerts := testsupport.NewAlertLog()
	commands := NewCommandHandler(subscribers, alerts, queue, nil, logger.Get())

	return &botFixture{
		handler:     NewHandler(subscribers, queue, commands, logger.Get()),
		bot:         bot,
		subscribers: subscribers,
		alerts:      alerts,
		queue:       queue,
	}
}

func commandUpdate(telegramID, chatID int64, command, args string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID:   1,
			ChatID:      chatID,
			UserID:      telegramID,
			UserName:    "tester",
			Text:        "/" + command + " " + args,
			IsCommand:   true,
			Command:     command,
			CommandArgs: args,
		},
	}
}

func waitForReply(t *testing.T, bot *fakeBot, want int) []string {
	t.Helper()
	var got []string
	require.Eventually(t, func() bool {
		got = bot.sent()
		return len(got) >= want
	}, time.Second, 5*time.Millisecond)
	return got
}

func TestStartRegistersSubscriberWithDefaults(t *testing.T) {
	f := newBotFixture(t)

	f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))

	sub, err := f.subscribers.GetByTelegramID(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sub.ChatID)
	assert.True(t, sub.MonitoringEnabled)
	assert.Equal(t, subscriber.DefaultSettings().LiquidationDropThresholdPercent,
		sub.Settings.LiquidationDropThresholdPercent)

	replies := waitForReply(t, f.bot, 1)
	assert.Contains(t, replies[0], "Monitoring is now enabled")
}

func TestStartIsIdempotent(t *testing.T) {
	f := newBotFixture(t)

	f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))
	f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))

	sub, err := f.subscribers.GetByTelegramID(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, sub.MonitoringEnabled)
	waitForReply(t, f.bot, 2)
}

func TestStopPausesAndMonitorResumes(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))
	f.handler.HandleUpdate(commandUpdate(100, 42, "stop", ""))

	sub, err := f.subscribers.GetByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.False(t, sub.MonitoringEnabled)

	f.handler.HandleUpdate(commandUpdate(100, 42, "monitor", ""))

	sub, err = f.subscribers.GetByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.True(t, sub.MonitoringEnabled)

	replies := waitForReply(t, f.bot, 3)
	assert.Contains(t, replies[1], "paused")
	assert.Contains(t, replies[2], "resumed")
}

func TestThresholdUpdatesTimeframe(t *testing.T) {
	f := newBotFixture(t)

	f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))
	f.handler.HandleUpdate(commandUpdate(100, 42, "threshold", "15min 2.5"))

	sub, err := f.subscribers.GetByTelegramID(context.Background(), 100)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, sub.Settings.Timeframes[0].ThresholdPercent, 0.001)

	replies := waitForReply(t, f.bot, 2)
	assert.Contains(t, replies[1], "15min threshold set")
}

func TestThresholdRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"missing args", ""},
		{"not a number", "15min abc"},
		{"negative", "15min -3"},
		{"unknown timeframe", "4hour 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBotFixture(t)

			f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))
			f.handler.HandleUpdate(commandUpdate(100, 42, "threshold", tt.args))

			sub, err := f.subscribers.GetByTelegramID(context.Background(), 100)
			require.NoError(t, err)
			def := subscriber.DefaultSettings()
			for i, tf := range sub.Settings.Timeframes {
				assert.Equal(t, def.Timeframes[i].ThresholdPercent, tf.ThresholdPercent)
			}
		})
	}
}

func TestLiquidationThresholdUpdates(t *testing.T) {
	f := newBotFixture(t)

	f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))
	f.handler.HandleUpdate(commandUpdate(100, 42, "liquidation", "12"))

	sub, err := f.subscribers.GetByTelegramID(context.Background(), 100)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, sub.Settings.LiquidationDropThresholdPercent, 0.001)
}

func TestModeSwitch(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))
	f.handler.HandleUpdate(commandUpdate(100, 42, "mode", "streaming"))

	sub, err := f.subscribers.GetByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, subscriber.ModeStreaming, sub.Settings.Mode)

	f.handler.HandleUpdate(commandUpdate(100, 42, "mode", "carrier-pigeon"))

	sub, err = f.subscribers.GetByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, subscriber.ModeStreaming, sub.Settings.Mode)
}

func TestAlertsListsRecent(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	f.handler.HandleUpdate(commandUpdate(100, 42, "start", ""))
	sub, err := f.subscribers.GetByTelegramID(ctx, 100)
	require.NoError(t, err)

	require.NoError(t, f.alerts.Insert(ctx, &alert.Alert{
		SubscriberID: sub.ID,
		Kind:         alert.KindChange,
		Symbol:       "BTCUSDT",
		Message:      "BTCUSDT 15min +2.50%",
		Value:        2.5,
	}))

	f.handler.HandleUpdate(commandUpdate(100, 42, "alerts", ""))

	replies := waitForReply(t, f.bot, 2)
	assert.Contains(t, replies[1], "BTCUSDT 15min +2.50%")
}

func TestUnknownCommandGetsHint(t *testing.T) {
	f := newBotFixture(t)

	f.handler.HandleUpdate(commandUpdate(100, 42, "frobnicate", ""))

	replies := waitForReply(t, f.bot, 1)
	assert.Contains(t, replies[0], "/help")
}

func TestNonCommandMessageGetsHint(t *testing.T) {
	f := newBotFixture(t)

	f.handler.HandleUpdate(telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 1,
			ChatID:    42,
			UserID:    100,
			Text:      "hello there",
		},
	})

	replies := waitForReply(t, f.bot, 1)
	assert.Contains(t, replies[0], "/help")

	// plain text never registers a subscriber
	_, err := f.subscribers.GetByTelegramID(context.Background(), 100)
	assert.Error(t, err)
}
