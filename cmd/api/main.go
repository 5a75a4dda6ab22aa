package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"shinebin/internal/address"
	"shinebin/internal/api"
	"shinebin/internal/availability"
	"shinebin/internal/bot"
	"shinebin/internal/config"
	"shinebin/internal/database"
	"shinebin/internal/domain"
	"shinebin/internal/events"
	"shinebin/internal/export"
	"shinebin/internal/logging"
	"shinebin/internal/metrics"
	"shinebin/internal/notify"
	"shinebin/internal/repository"
	"shinebin/internal/service"
	"shinebin/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const addressSessionIdle = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	cat, err := cfg.Catalog.Build()
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}

	db, err := database.NewDB(cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}
	cache := initCache(cfg, redisClient, logger)

	eventBus := events.NewEventBus()
	if forwarder := initAMQP(cfg, eventBus, logger); forwarder != nil {
		defer (func() { _ = forwarder.Close() })()
	}

	notifier, tgBot := initNotifiers(ctx, cfg, logger)
	notifyWorker := worker.NewNotifyWorker(
		db, notifier, cat, redisClient,
		worker.RetryPolicyFromConfig(cfg.Notifications.Retry),
		cfg.Notifications.QueueSize,
		logging.Component(logger, "notify-worker"),
	)
	goRun(func() { notifyWorker.Start(ctx) })

	index := availability.NewIndex(db, cache, cat, logging.Component(logger, "availability"))
	bookingService := service.NewBookingService(db, index, cat, notifyWorker, eventBus, cfg.Booking, logging.Component(logger, "booking"))

	sweeper := service.NewExpirySweeper(bookingService, index, cfg.Booking.PendingTTL, cfg.Booking.SweepInterval, logging.Component(logger, "sweeper"))
	goRun(func() { sweeper.Start(ctx) })

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
		goRun(func() { backupService.Start(ctx) })
	}

	startMetrics(ctx, cfg, logger, goRun)

	exporter := export.NewExporter(cat, cfg.Exports.Path, logging.Component(logger, "export"))

	if tgBot != nil && cfg.Notifications.Telegram.OperatorCommands {
		operatorBot := bot.NewBot(
			bot.NewBotWrapper(tgBot), bookingService, cat, exporter,
			cfg.Notifications.Telegram.ChatIDs, cfg.Booking.Location(),
			logging.Component(logger, "operator-bot"),
		)
		goRun(func() {
			defer operatorBot.Stop()
			operatorBot.Start(ctx)
		})
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}
	if !cfg.API.Auth.Enabled {
		logger.Warn().Msg("API auth is disabled, operator endpoints are open")
	}
	httpServer := api.NewHTTPServer(&cfg.API, bookingService, exporter, cache, db, initAddresses(cfg, db, logger), logger)

	err = serve(ctx, httpServer, cfg, logger)

	stop()
	wg.Wait()
	notifyWorker.Wait()
	logger.Info().Msg("API server stopped")
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCache prefers redis and falls back to process memory when it is absent or down.
func initCache(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.CacheRepository {
	memory := repository.NewMemoryCacheRepository(cfg.Booking.CacheTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisCacheRepository(redisClient, cfg.Booking.CacheTTL)
	return repository.NewFailoverCacheRepository(primary, memory, logging.Component(logger, "cache"))
}

func initAMQP(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *events.AMQPForwarder {
	if !cfg.Notifications.AMQP.Enabled {
		return nil
	}
	forwarder, err := events.NewAMQPForwarder(cfg.Notifications.AMQP.URL, cfg.Notifications.AMQP.Exchange, logging.Component(logger, "amqp"))
	if err != nil {
		logger.Warn().Err(err).Msg("amqp connection failed, continuing without event forwarding")
		return nil
	}
	forwarder.Attach(bus)
	logger.Info().Str("exchange", cfg.Notifications.AMQP.Exchange).Msg("amqp forwarding enabled")
	return forwarder
}

// initNotifiers always logs alerts; telegram and sheets are added when configured.
// The telegram connection is returned so the operator bot can share it.
func initNotifiers(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (notify.Notifier, *tgbotapi.BotAPI) {
	notifiers := notify.Multi{notify.NewLogNotifier(logging.Component(logger, "alerts"))}

	var tgBot *tgbotapi.BotAPI
	tg := cfg.Notifications.Telegram
	if tg.Enabled {
		var err error
		tgBot, err = notify.NewTelegramBot(tg.BotToken, tg.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram alerts")
		} else {
			notifiers = append(notifiers, notify.NewTelegramNotifier(tgBot, tg.ChatIDs))
			logger.Info().Int("chats", len(tg.ChatIDs)).Msg("telegram alerts enabled")
		}
	}

	sh := cfg.Notifications.Sheets
	if sh.Enabled {
		sheets, err := notify.NewSheetsNotifier(ctx, sh.CredentialsFile, sh.SpreadsheetID, sh.SheetName)
		if err != nil {
			logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		} else {
			notifiers = append(notifiers, sheets)
			logger.Info().Msg("google sheets connected")
		}
	}

	return notifiers, tgBot
}

// initAddresses returns nil when suggestions are disabled.
func initAddresses(cfg *config.Config, db *database.DB, logger *zerolog.Logger) *address.Sessions {
	switch cfg.Address.Provider {
	case config.AddressProviderHistory:
		logger.Info().Int("min_chars", cfg.Address.MinChars).Msg("address suggestions from booking history")
		return address.NewSessions(address.NewHistoryProvider(db, cfg.Address.Limit), cfg.Address.MinChars, addressSessionIdle)
	default:
		return nil
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, goRun func(func())) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	goRun(func() { startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger) })
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error().Err(serveErr).Msg("http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return serveErr
}
