package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"oipulse/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Telegram      TelegramConfig
	Binance       BinanceConfig
	Bybit         BybitConfig
	Catalog       CatalogConfig
	Monitoring    MonitoringConfig
	ErrorTracking ErrorTrackingConfig
	Metrics       MetricsConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"oipulse"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	Debug    bool   `envconfig:"TELEGRAM_DEBUG" default:"false"`
}

type BinanceConfig struct {
	APIKey    string `envconfig:"BINANCE_API_KEY"`
	SecretKey string `envconfig:"BINANCE_SECRET_KEY"`
	// Binance futures allows 2400 weight/min; OI polling stays far below
	RequestsPerMinute int `envconfig:"BINANCE_REQUESTS_PER_MINUTE" default:"1200"`
}

type BybitConfig struct {
	APIKey            string `envconfig:"BYBIT_API_KEY"`
	SecretKey         string `envconfig:"BYBIT_SECRET_KEY"`
	RequestsPerMinute int    `envconfig:"BYBIT_REQUESTS_PER_MINUTE" default:"100"`
}

type CatalogConfig struct {
	APIKey      string        `envconfig:"COINMARKETCAP_API_KEY" required:"true"`
	BaseURL     string        `envconfig:"COINMARKETCAP_BASE_URL" default:"https://pro-api.coinmarketcap.com/v1"`
	CacheTTL    time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"1h"`
	ListingSize int           `envconfig:"CATALOG_LISTING_SIZE" default:"200"`
}

// MonitoringConfig tunes the detection cycle and the streaming ingestor.
// Every recognized knob lives here with its default; subscriber settings
// override the per-subscriber subset.
type MonitoringConfig struct {
	CycleInterval    time.Duration `envconfig:"MONITORING_CYCLE_INTERVAL" default:"5m"`
	CycleCooldown    time.Duration `envconfig:"MONITORING_CYCLE_COOLDOWN" default:"1m"`
	FetchPacing      time.Duration `envconfig:"MONITORING_FETCH_PACING" default:"200ms"`
	SubscriberPacing time.Duration `envconfig:"MONITORING_SUBSCRIBER_PACING" default:"1s"`
	DeliveryPacing   time.Duration `envconfig:"MONITORING_DELIVERY_PACING" default:"1s"`

	// Nearest-snapshot lookup tolerance around target time
	SnapshotTolerance time.Duration `envconfig:"MONITORING_SNAPSHOT_TOLERANCE" default:"2m"`

	// Retention for historical snapshots beyond the longest timeframe
	RetentionSlack    time.Duration `envconfig:"MONITORING_RETENTION_SLACK" default:"24h"`
	RetentionInterval time.Duration `envconfig:"MONITORING_RETENTION_INTERVAL" default:"1h"`

	// Streaming ingestor
	StreamBaseBackoff  time.Duration `envconfig:"STREAM_BASE_BACKOFF" default:"5s"`
	StreamMaxBackoff   time.Duration `envconfig:"STREAM_MAX_BACKOFF" default:"60s"`
	StreamMaxSymbols   int           `envconfig:"STREAM_MAX_SYMBOLS" default:"200"`
	StreamQueueSize    int           `envconfig:"STREAM_QUEUE_SIZE" default:"1024"`
	LiveUpdateFloorPct float64       `envconfig:"STREAM_LIVE_UPDATE_FLOOR_PCT" default:"0.1"`
	AvailabilityTTL    time.Duration `envconfig:"AVAILABILITY_CACHE_TTL" default:"1h"`

	// Heuristic OI-contraction conversion to an estimated USD volume
	LiquidationVolumeMultiplier float64 `envconfig:"LIQUIDATION_VOLUME_MULTIPLIER" default:"50000"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load reads configuration from environment variables.
// It first tries to load .env file (useful for local development).
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Monitoring.CycleInterval < time.Minute {
		return errors.NewValidationError("MONITORING_CYCLE_INTERVAL", "must be at least 1 minute", c.Monitoring.CycleInterval)
	}
	if c.Monitoring.CycleInterval > time.Hour {
		return errors.NewValidationError("MONITORING_CYCLE_INTERVAL", "must not exceed 1 hour", c.Monitoring.CycleInterval)
	}
	if c.Catalog.CacheTTL < time.Minute || c.Catalog.CacheTTL > 24*time.Hour {
		return errors.NewValidationError("CATALOG_CACHE_TTL", "must be between 1 minute and 24 hours", c.Catalog.CacheTTL)
	}
	if c.Monitoring.StreamMaxSymbols < 1 {
		return errors.NewValidationError("STREAM_MAX_SYMBOLS", "must be positive", c.Monitoring.StreamMaxSymbols)
	}
	if c.Monitoring.LiquidationVolumeMultiplier <= 0 {
		return errors.NewValidationError("LIQUIDATION_VOLUME_MULTIPLIER", "must be positive", c.Monitoring.LiquidationVolumeMultiplier)
	}
	return nil
}
