package subscriber

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Mode selects how a subscriber's instruments are monitored.
type Mode string

const (
	// ModePolling fetches open interest over REST on each cycle
	ModePolling Mode = "polling"
	// ModeStreaming consumes the shared live open-interest stream
	ModeStreaming Mode = "streaming"
)

// Subscriber is a Telegram user receiving open-interest alerts
type Subscriber struct {
	ID                uuid.UUID `db:"id"`
	TelegramID        int64     `db:"telegram_id"`
	ChatID            int64     `db:"chat_id"`
	Settings          Settings  `db:"settings"` // stored as JSONB
	MonitoringEnabled bool      `db:"monitoring_enabled"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// Timeframe is one lookback window with its own alert threshold
type Timeframe struct {
	Name             string  `json:"name"`
	WindowMinutes    int     `json:"window_minutes"`
	ThresholdPercent float64 `json:"threshold_percent"`
}

// InstrumentFilter narrows the instrument universe before a cycle
type InstrumentFilter struct {
	MinMarketCap     float64  `json:"min_market_cap"`
	MinVolume24h     float64  `json:"min_volume_24h"`
	ExcludeTopN      int      `json:"exclude_top_n"`
	CustomExclusions []string `json:"custom_exclusions"`
}

// Settings contains the per-subscriber change-detection policy.
// Stored as JSONB; unknown keys are ignored on load and missing keys fall
// back to defaults via Normalize, so the effective policy is always complete.
type Settings struct {
	Timeframes []Timeframe `json:"timeframes"`

	LiquidationDropThresholdPercent float64 `json:"liquidation_drop_threshold_percent"`

	MaxInstrumentsPerCycle int              `json:"max_instruments_per_cycle"`
	Filter                 InstrumentFilter `json:"filter"`

	EnableChangeAlerts         bool `json:"enable_change_alerts"`
	EnableLiquidationInference bool `json:"enable_liquidation_inference"`
	AlertOnIncrease            bool `json:"alert_on_increase"`
	AlertOnDecrease            bool `json:"alert_on_decrease"`

	Mode Mode `json:"mode"`

	// Minimum |percent change| for a streaming update to raise an alert
	StreamThresholdPercent float64 `json:"stream_threshold_percent"`
}

// DefaultSettings returns the documented default policy
func DefaultSettings() Settings {
	return Settings{
		Timeframes: []Timeframe{
			{Name: "15min", WindowMinutes: 15, ThresholdPercent: 2.0},
			{Name: "30min", WindowMinutes: 30, ThresholdPercent: 3.0},
			{Name: "1hour", WindowMinutes: 60, ThresholdPercent: 5.0},
		},
		LiquidationDropThresholdPercent: 8.0,
		MaxInstrumentsPerCycle:          30,
		Filter: InstrumentFilter{
			MinMarketCap: 100_000_000,
			MinVolume24h: 10_000_000,
			ExcludeTopN:  10,
		},
		EnableChangeAlerts:         true,
		EnableLiquidationInference: true,
		AlertOnIncrease:            true,
		AlertOnDecrease:            true,
		Mode:                       ModePolling,
		StreamThresholdPercent:     1.0,
	}
}

// UnmarshalJSON decodes a stored settings blob on top of the default
// policy, so keys absent from the blob keep their documented defaults.
// Plain decoding would leave absent boolean toggles false, silently
// muting alerts for subscribers stored before a toggle existed.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings

	merged := plain(DefaultSettings())
	if err := json.Unmarshal(data, &merged); err != nil {
		return err
	}
	*s = Settings(merged)
	return nil
}

// Normalize fills in any missing or out-of-range fields with defaults so
// callers always see a complete policy.
func (s *Settings) Normalize() {
	def := DefaultSettings()

	if len(s.Timeframes) == 0 {
		s.Timeframes = def.Timeframes
	}
	for i := range s.Timeframes {
		if s.Timeframes[i].WindowMinutes <= 0 || s.Timeframes[i].ThresholdPercent <= 0 {
			s.Timeframes[i] = def.Timeframes[i%len(def.Timeframes)]
		}
	}
	if s.LiquidationDropThresholdPercent <= 0 {
		s.LiquidationDropThresholdPercent = def.LiquidationDropThresholdPercent
	}
	if s.MaxInstrumentsPerCycle <= 0 || s.MaxInstrumentsPerCycle > 200 {
		s.MaxInstrumentsPerCycle = def.MaxInstrumentsPerCycle
	}
	if s.Mode != ModePolling && s.Mode != ModeStreaming {
		s.Mode = def.Mode
	}
	if s.StreamThresholdPercent <= 0 {
		s.StreamThresholdPercent = def.StreamThresholdPercent
	}
}

// WantsDirection reports whether alerts for the given sign of change are
// enabled (increase = true for positive changes).
func (s *Settings) WantsDirection(increase bool) bool {
	if increase {
		return s.AlertOnIncrease
	}
	return s.AlertOnDecrease
}
