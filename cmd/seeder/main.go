// Seeder registers a subscriber directly in the database, bypassing the
// bot. Useful for local development and staging smoke tests.
package main

import (
	"context"
	"flag"

	"oipulse/internal/adapters/config"
	"oipulse/internal/adapters/postgres"
	"oipulse/internal/domain/subscriber"
	pgrepo "oipulse/internal/repository/postgres"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
)

func main() {
	telegramID := flag.Int64("telegram-id", 0, "Telegram user id to register")
	chatID := flag.Int64("chat-id", 0, "Chat id for alert delivery (defaults to telegram-id)")
	streaming := flag.Bool("streaming", false, "Register in streaming mode instead of polling")
	monitoring := flag.Bool("monitoring", true, "Enable monitoring immediately")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()

	if *telegramID == 0 {
		log.Fatal("telegram-id is required")
	}
	if *chatID == 0 {
		*chatID = *telegramID
	}

	ctx := context.Background()

	pg, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pg.Close()

	if err := pgrepo.Migrate(ctx, pg.DB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	repo := pgrepo.NewSubscriberRepository(pg.DB())

	if existing, err := repo.GetByTelegramID(ctx, *telegramID); err == nil {
		log.Infow("Subscriber already registered", "id", existing.ID, "telegram_id", *telegramID)
		return
	} else if !errors.Is(err, errors.ErrNotFound) {
		log.Fatalf("Lookup failed: %v", err)
	}

	settings := subscriber.DefaultSettings()
	if *streaming {
		settings.Mode = subscriber.ModeStreaming
	}

	sub := &subscriber.Subscriber{
		TelegramID:        *telegramID,
		ChatID:            *chatID,
		Settings:          settings,
		MonitoringEnabled: *monitoring,
	}
	if err := repo.Create(ctx, sub); err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}

	log.Infow("Subscriber registered",
		"id", sub.ID,
		"telegram_id", sub.TelegramID,
		"mode", settings.Mode,
		"monitoring", *monitoring,
	)
}
