package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	catalogclient "oipulse/internal/adapters/catalog"
	"oipulse/internal/adapters/config"
	"oipulse/internal/adapters/errors/noop"
	"oipulse/internal/adapters/errors/sentry"
	"oipulse/internal/adapters/exchanges"
	"oipulse/internal/adapters/exchanges/binance"
	"oipulse/internal/adapters/exchanges/bybit"
	"oipulse/internal/adapters/postgres"
	adapterredis "oipulse/internal/adapters/redis"
	oiws "oipulse/internal/adapters/websocket"
	"oipulse/internal/bot"
	"oipulse/internal/events"
	"oipulse/internal/metrics"
	pgrepo "oipulse/internal/repository/postgres"
	"oipulse/internal/services/alerts"
	catalogsvc "oipulse/internal/services/catalog"
	"oipulse/internal/services/monitoring"
	"oipulse/internal/services/streaming"
	"oipulse/internal/workers"
	"oipulse/pkg/errors"
	"oipulse/pkg/logger"
	"oipulse/pkg/telegram"
	"oipulse/pkg/telegram/adapters/tgbotapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	pg, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pg.Close()

	if err := pgrepo.Migrate(ctx, pg.DB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	rdb, err := adapterredis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	snapshotRepo := pgrepo.NewSnapshotRepository(pg.DB())
	subscriberRepo := pgrepo.NewSubscriberRepository(pg.DB())
	alertRepo := pgrepo.NewAlertRepository(pg.DB())
	catalogCacheRepo := pgrepo.NewCatalogCacheRepository(pg.DB())

	// Exchange providers. Binance is the polling and streaming venue;
	// Bybit contributes its tradable set so cross-listed symbols resolve.
	binanceProvider := binance.NewClient(binance.Config{
		RequestsPerMinute: cfg.Binance.RequestsPerMinute,
	})
	bybitProvider := bybit.NewClient(bybit.Config{
		RequestsPerMinute: cfg.Bybit.RequestsPerMinute,
	})
	providers := []exchanges.Provider{binanceProvider, bybitProvider}

	// Catalog
	cmcClient, err := catalogclient.NewClient(catalogclient.Config{
		APIKey:  cfg.Catalog.APIKey,
		BaseURL: cfg.Catalog.BaseURL,
		Limit:   cfg.Catalog.ListingSize,
	})
	if err != nil {
		log.Fatalf("Failed to create catalog client: %v", err)
	}

	catalogService := catalogsvc.NewService(cmcClient, catalogCacheRepo, rdb, catalogsvc.Config{
		TTL:             cfg.Catalog.CacheTTL,
		AvailabilityTTL: cfg.Monitoring.AvailabilityTTL,
	})

	// Live stream plumbing
	queue := events.NewQueue(cfg.Monitoring.StreamQueueSize)
	defer queue.Close()

	connFactory := func(symbols []string) streaming.Conn {
		return oiws.NewOIStreamClient("", symbols, cfg.Monitoring.LiveUpdateFloorPct, queue, snapshotRepo)
	}
	ingestor := streaming.NewIngestor(connFactory, streaming.Config{
		MaxSymbols:  cfg.Monitoring.StreamMaxSymbols,
		BaseBackoff: cfg.Monitoring.StreamBaseBackoff,
		MaxBackoff:  cfg.Monitoring.StreamMaxBackoff,
	})
	defer ingestor.Stop()

	// Telegram
	tgBot, err := tgbotapi.NewBot(tgbotapi.Config{
		Token: cfg.Telegram.BotToken,
		Debug: cfg.Telegram.Debug,
	}, log)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}

	replyQueue := telegram.NewAsyncMessageQueue(tgBot, 0, 0, log)
	replyQueue.Start()
	defer replyQueue.Stop()

	dispatcher := alerts.NewDispatcher(tgBot, alertRepo, alerts.Config{
		Pacing: cfg.Monitoring.DeliveryPacing,
	})

	// Detection pipeline
	inferencer := monitoring.NewInferencer(cfg.Monitoring.LiquidationVolumeMultiplier)
	detector := monitoring.NewDetector(
		snapshotRepo,
		monitoring.NewProviderFetcher(binanceProvider),
		catalogService,
		inferencer,
		monitoring.DetectorConfig{
			FetchPacing:       cfg.Monitoring.FetchPacing,
			SnapshotTolerance: cfg.Monitoring.SnapshotTolerance,
		},
	)
	coordinator := monitoring.NewCoordinator(
		subscriberRepo,
		catalogService,
		detector,
		inferencer,
		dispatcher,
		ingestor,
		queue,
		monitoring.CoordinatorConfig{
			CycleCooldown:    cfg.Monitoring.CycleCooldown,
			SubscriberPacing: cfg.Monitoring.SubscriberPacing,
		},
	)

	// Bot command surface
	commands := bot.NewCommandHandler(subscriberRepo, alertRepo, replyQueue, ingestor, log)
	handler := bot.NewHandler(subscriberRepo, replyQueue, commands, log)
	tgBot.SetHandler(handler.HandleUpdate)

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			log.Errorf("Telegram bot stopped: %v", err)
		}
	}()

	// Workers
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewMonitoringWorker(coordinator, cfg.Monitoring.CycleInterval, true))
	scheduler.RegisterWorker(workers.NewCatalogWorker(catalogService, providers, cfg.Catalog.CacheTTL, true))
	scheduler.RegisterWorker(workers.NewRetentionWorker(snapshotRepo,
		retentionHorizon(cfg), cfg.Monitoring.RetentionInterval, true))

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	metricsServer := startMetricsServer(cfg, pg, rdb, log)

	log.Info("System initialized")

	waitForShutdown(ctx, cancel, log)

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}
	tgBot.Stop()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Metrics server shutdown: %v", err)
		}
	}
	if err := errorTracker.Flush(context.Background()); err != nil {
		log.Warnf("Failed to flush error tracker: %v", err)
	}

	log.Info("Shutdown complete")
}

// retentionHorizon covers the longest detection window plus configured slack
func retentionHorizon(cfg *config.Config) time.Duration {
	longestWindow := time.Hour
	return longestWindow + cfg.Monitoring.RetentionSlack
}

func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

func startMetricsServer(cfg *config.Config, pg *postgres.Client, rdb *adapterredis.Client, log *logger.Logger) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	metrics.RegisterStateCollector(metrics.NewStateCollector(log, pg.DB(), rdb.Raw()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:    cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		log.Infow("Metrics server listening", "addr", cfg.Metrics.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()

	return server
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
}
