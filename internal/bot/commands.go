package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"oipulse/internal/domain/alert"
	"oipulse/internal/domain/subscriber"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
	"oipulse/pkg/telegram"
)

const defaultRecentAlerts = 10

// StreamStatus exposes the state of the shared live stream for /status
type StreamStatus interface {
	Running() bool
	Symbols() []string
}

// CommandHandler implements the bot command set
type CommandHandler struct {
	subscribers subscriber.Repository
	alerts      alert.Repository
	replies     *telegram.AsyncMessageQueue
	stream      StreamStatus
	log         *logger.Logger
}

// NewCommandHandler creates the command set. stream may be nil when no live
// stream is configured.
func NewCommandHandler(
	subscribers subscriber.Repository,
	alerts alert.Repository,
	replies *telegram.AsyncMessageQueue,
	stream StreamStatus,
	log *logger.Logger,
) *CommandHandler {
	return &CommandHandler{
		subscribers: subscribers,
		alerts:      alerts,
		replies:     replies,
		stream:      stream,
		log:         log.With("component", "bot_commands"),
	}
}

// Handle dispatches one command message for an already-resolved subscriber
func (ch *CommandHandler) Handle(ctx context.Context, sub *subscriber.Subscriber, msg *telegram.Message) error {
	args := strings.Fields(msg.CommandArgs)

	switch msg.Command {
	case "start":
		return ch.handleStart(ctx, sub)
	case "help":
		return ch.handleHelp(sub)
	case "monitor":
		return ch.handleMonitor(ctx, sub, true)
	case "stop":
		return ch.handleMonitor(ctx, sub, false)
	case "settings":
		return ch.handleSettings(sub)
	case "threshold":
		return ch.handleThreshold(ctx, sub, args)
	case "liquidation":
		return ch.handleLiquidation(ctx, sub, args)
	case "mode":
		return ch.handleMode(ctx, sub, args)
	case "alerts":
		return ch.handleAlerts(ctx, sub, args)
	case "status":
		return ch.handleStatus(sub)
	default:
		ch.reply(sub.ChatID, fmt.Sprintf("Unknown command /%s. Use /help to see available commands.", msg.Command))
		return nil
	}
}

func (ch *CommandHandler) handleStart(ctx context.Context, sub *subscriber.Subscriber) error {
	if !sub.MonitoringEnabled {
		if err := ch.subscribers.SetMonitoring(ctx, sub.ID, true); err != nil {
			return errors.Wrap(err, "failed to enable monitoring")
		}
		sub.MonitoringEnabled = true
	}

	var b strings.Builder
	b.WriteString("👋 <b>Open Interest Monitor</b>\n\n")
	b.WriteString("Monitoring is now enabled. You will receive alerts when open interest on perpetual futures moves sharply.\n\n")
	b.WriteString("Use /settings to review your alert policy and /help for the full command list.")
	ch.reply(sub.ChatID, b.String())
	return nil
}

func (ch *CommandHandler) handleHelp(sub *subscriber.Subscriber) error {
	help := `<b>Commands</b>
/start — register and enable monitoring
/stop — pause alerts
/monitor — resume alerts
/settings — show your current alert policy
/threshold &lt;timeframe&gt; &lt;percent&gt; — set a timeframe threshold (e.g. /threshold 15min 2.5)
/liquidation &lt;percent&gt; — set the liquidation drop threshold
/mode &lt;polling|streaming&gt; — switch data mode
/alerts [n] — show your recent alerts
/status — show monitoring status`
	ch.reply(sub.ChatID, help)
	return nil
}

func (ch *CommandHandler) handleMonitor(ctx context.Context, sub *subscriber.Subscriber, enabled bool) error {
	if sub.MonitoringEnabled == enabled {
		if enabled {
			ch.reply(sub.ChatID, "Monitoring is already enabled.")
		} else {
			ch.reply(sub.ChatID, "Monitoring is already paused.")
		}
		return nil
	}

	if err := ch.subscribers.SetMonitoring(ctx, sub.ID, enabled); err != nil {
		return errors.Wrap(err, "failed to toggle monitoring")
	}
	sub.MonitoringEnabled = enabled

	ch.log.Infow("Monitoring toggled", "subscriber_id", sub.ID, "enabled", enabled)

	if enabled {
		ch.reply(sub.ChatID, "✅ Monitoring resumed.")
	} else {
		ch.reply(sub.ChatID, "⏸ Monitoring paused. Use /monitor to resume.")
	}
	return nil
}

func (ch *CommandHandler) handleSettings(sub *subscriber.Subscriber) error {
	s := sub.Settings

	var b strings.Builder
	b.WriteString("<b>⚙️ Alert Policy</b>\n\n")
	b.WriteString("<b>Timeframes:</b>\n")
	for _, tf := range s.Timeframes {
		fmt.Fprintf(&b, "  • %s: ±%.1f%%\n", tf.Name, tf.ThresholdPercent)
	}
	fmt.Fprintf(&b, "\n<b>Liquidation drop threshold:</b> %.1f%%\n", s.LiquidationDropThresholdPercent)
	fmt.Fprintf(&b, "<b>Mode:</b> %s\n", s.Mode)
	if s.Mode == subscriber.ModeStreaming {
		fmt.Fprintf(&b, "<b>Stream alert threshold:</b> ±%.1f%%\n", s.StreamThresholdPercent)
	}
	fmt.Fprintf(&b, "<b>Instruments per cycle:</b> %d\n", s.MaxInstrumentsPerCycle)
	fmt.Fprintf(&b, "\n<b>Filter:</b>\n")
	fmt.Fprintf(&b, "  • Min market cap: $%s\n", humanize.SIWithDigits(s.Filter.MinMarketCap, 1, ""))
	fmt.Fprintf(&b, "  • Min 24h volume: $%s\n", humanize.SIWithDigits(s.Filter.MinVolume24h, 1, ""))
	fmt.Fprintf(&b, "  • Exclude top %d by market cap\n", s.Filter.ExcludeTopN)
	fmt.Fprintf(&b, "\n<b>Change alerts:</b> %s | <b>Liquidation inference:</b> %s\n",
		onOff(s.EnableChangeAlerts), onOff(s.EnableLiquidationInference))
	fmt.Fprintf(&b, "<b>Monitoring:</b> %s", onOff(sub.MonitoringEnabled))

	ch.reply(sub.ChatID, b.String())
	return nil
}

func (ch *CommandHandler) handleThreshold(ctx context.Context, sub *subscriber.Subscriber, args []string) error {
	if len(args) != 2 {
		ch.reply(sub.ChatID, "Usage: /threshold &lt;timeframe&gt; &lt;percent&gt;\nExample: /threshold 15min 2.5")
		return nil
	}

	pct, err := strconv.ParseFloat(args[1], 64)
	if err != nil || pct <= 0 || pct > 100 {
		ch.reply(sub.ChatID, "Threshold must be a number between 0 and 100.")
		return nil
	}

	name := strings.ToLower(args[0])
	found := false
	for i := range sub.Settings.Timeframes {
		if sub.Settings.Timeframes[i].Name == name {
			sub.Settings.Timeframes[i].ThresholdPercent = pct
			found = true
			break
		}
	}
	if !found {
		names := make([]string, 0, len(sub.Settings.Timeframes))
		for _, tf := range sub.Settings.Timeframes {
			names = append(names, tf.Name)
		}
		ch.reply(sub.ChatID, fmt.Sprintf("Unknown timeframe %q. Available: %s", name, strings.Join(names, ", ")))
		return nil
	}

	if err := ch.subscribers.UpdateSettings(ctx, sub.ID, sub.Settings); err != nil {
		return errors.Wrap(err, "failed to update settings")
	}

	ch.reply(sub.ChatID, fmt.Sprintf("✅ %s threshold set to ±%.1f%%.", name, pct))
	return nil
}

func (ch *CommandHandler) handleLiquidation(ctx context.Context, sub *subscriber.Subscriber, args []string) error {
	if len(args) != 1 {
		ch.reply(sub.ChatID, "Usage: /liquidation &lt;percent&gt;\nExample: /liquidation 8")
		return nil
	}

	pct, err := strconv.ParseFloat(args[0], 64)
	if err != nil || pct <= 0 || pct > 100 {
		ch.reply(sub.ChatID, "Threshold must be a number between 0 and 100.")
		return nil
	}

	sub.Settings.LiquidationDropThresholdPercent = pct
	if err := ch.subscribers.UpdateSettings(ctx, sub.ID, sub.Settings); err != nil {
		return errors.Wrap(err, "failed to update settings")
	}

	ch.reply(sub.ChatID, fmt.Sprintf("✅ Liquidation drop threshold set to %.1f%%.", pct))
	return nil
}

func (ch *CommandHandler) handleMode(ctx context.Context, sub *subscriber.Subscriber, args []string) error {
	if len(args) != 1 {
		ch.reply(sub.ChatID, "Usage: /mode &lt;polling|streaming&gt;")
		return nil
	}

	mode := subscriber.Mode(strings.ToLower(args[0]))
	if mode != subscriber.ModePolling && mode != subscriber.ModeStreaming {
		ch.reply(sub.ChatID, "Mode must be either polling or streaming.")
		return nil
	}

	sub.Settings.Mode = mode
	if err := ch.subscribers.UpdateSettings(ctx, sub.ID, sub.Settings); err != nil {
		return errors.Wrap(err, "failed to update settings")
	}

	ch.reply(sub.ChatID, fmt.Sprintf("✅ Mode set to %s. The change takes effect on the next monitoring cycle.", mode))
	return nil
}

func (ch *CommandHandler) handleAlerts(ctx context.Context, sub *subscriber.Subscriber, args []string) error {
	limit := defaultRecentAlerts
	if len(args) == 1 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	rows, err := ch.alerts.ListRecent(ctx, sub.ID, limit)
	if err != nil {
		return errors.Wrap(err, "failed to list recent alerts")
	}
	if len(rows) == 0 {
		ch.reply(sub.ChatID, "No alerts yet.")
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>🕑 Last %d alerts</b>\n\n", len(rows))
	for _, row := range rows {
		fmt.Fprintf(&b, "%s  %s\n", row.CreatedAt.Format("Jan 02 15:04"), row.Message)
	}
	ch.reply(sub.ChatID, b.String())
	return nil
}

func (ch *CommandHandler) handleStatus(sub *subscriber.Subscriber) error {
	var b strings.Builder
	b.WriteString("<b>📡 Status</b>\n\n")
	fmt.Fprintf(&b, "Monitoring: %s\n", onOff(sub.MonitoringEnabled))
	fmt.Fprintf(&b, "Mode: %s\n", sub.Settings.Mode)

	if ch.stream != nil {
		if ch.stream.Running() {
			fmt.Fprintf(&b, "Live stream: running (%d symbols)", len(ch.stream.Symbols()))
		} else {
			b.WriteString("Live stream: stopped")
		}
	}

	ch.reply(sub.ChatID, b.String())
	return nil
}

func (ch *CommandHandler) reply(chatID int64, text string) {
	err := ch.replies.Enqueue(chatID, text, telegram.MessageOptions{ParseMode: "HTML"}, nil)
	if err != nil {
		ch.log.Errorw("Failed to enqueue reply", "chat_id", chatID, "error", err)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
