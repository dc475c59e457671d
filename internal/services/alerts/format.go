package alerts

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"oipulse/internal/domain/alert"
)

var timeframeLabels = map[string]string{
	"15min": "15 minutes",
	"30min": "30 minutes",
	"1hour": "1 hour",
}

// BuildMessages turns a batch of events into grouped outbound messages:
// one per change-event timeframe plus one for inferred liquidations. Each
// group lists at most maxLines events, the rest collapse into a "+K more"
// line so shown + K always equals the group total.
func BuildMessages(evs []alert.ChangeEvent, maxLines int) []string {
	var (
		order  []string
		groups = make(map[string][]alert.ChangeEvent)
		liqs   []alert.ChangeEvent
	)

	for _, ev := range evs {
		if ev.Kind == alert.KindInferredLiquidation {
			liqs = append(liqs, ev)
			continue
		}
		key := ev.Timeframe
		if key == "" {
			key = "live"
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ev)
	}

	var messages []string

	for _, tf := range order {
		messages = append(messages, formatChangeGroup(tf, groups[tf], maxLines))
	}
	if len(liqs) > 0 {
		messages = append(messages, formatLiquidationGroup(liqs, maxLines))
	}

	return messages
}

func formatChangeGroup(timeframe string, evs []alert.ChangeEvent, maxLines int) string {
	label := timeframeLabels[timeframe]
	if label == "" {
		label = timeframe
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>📊 Open Interest Changes (%s)</b>\n\n", label)

	shown := evs
	if len(shown) > maxLines {
		shown = shown[:maxLines]
	}
	for _, ev := range shown {
		arrow := "📉"
		if ev.Increase() {
			arrow = "📈"
		}
		fmt.Fprintf(&b, "%s <b>%s</b>: %+.2f%%\n", arrow, ev.Symbol, ev.PercentChange)
	}

	if extra := len(evs) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n<i>+%d more</i>", extra)
	}

	return b.String()
}

func formatLiquidationGroup(evs []alert.ChangeEvent, maxLines int) string {
	var b strings.Builder
	b.WriteString("<b>⚡ Estimated Liquidations</b>\n\n")

	shown := evs
	if len(shown) > maxLines {
		shown = shown[:maxLines]
	}
	for _, ev := range shown {
		marker := "🟡"
		if ev.Confidence == alert.ConfidenceHigh {
			marker = "🔴"
		}
		fmt.Fprintf(&b, "%s <b>%s</b> %s\n   OI: %.2f%% | ~$%s\n",
			marker, ev.Symbol, strings.ToUpper(string(ev.Side)),
			ev.PercentChange, humanize.SIWithDigits(ev.EstimatedVolume, 1, ""))
	}

	if extra := len(evs) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n<i>+%d more</i>", extra)
	}

	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormatEvent renders a single event as a standalone message, used for the
// audit log.
func FormatEvent(ev *alert.ChangeEvent) string {
	switch ev.Kind {
	case alert.KindInferredLiquidation:
		confidence := titleCase(string(ev.Confidence))
		return fmt.Sprintf(
			"⚡ <b>%s</b> Likely %s Liquidations\nConfidence: %s\n📉 OI dropped: %.2f%%\n💰 Est. volume: $%s",
			ev.Symbol, strings.ToUpper(string(ev.Side)), confidence,
			ev.PercentChange, humanize.CommafWithDigits(ev.EstimatedVolume, 0),
		)
	default:
		arrow := "📉"
		if ev.Increase() {
			arrow = "📈"
		}
		label := timeframeLabels[ev.Timeframe]
		if label == "" {
			if ev.Source == "stream" {
				label = "live"
			} else {
				label = ev.Timeframe
			}
		}
		return fmt.Sprintf(
			"%s <b>%s</b> OI %s\n⏱ Window: %s\nChange: %+.2f%%\nCurrent: %s\nPrevious: %s",
			arrow, ev.Symbol, ev.Direction, label, ev.PercentChange,
			humanize.CommafWithDigits(ev.CurrentValue, 0),
			humanize.CommafWithDigits(ev.PreviousValue, 0),
		)
	}
}
