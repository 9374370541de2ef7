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
	"syscall"
	"time"

	"selefli/internal/api"
	"selefli/internal/config"
	"selefli/internal/database"
	"selefli/internal/domain"
	"selefli/internal/events"
	"selefli/internal/identity"
	"selefli/internal/logging"
	"selefli/internal/metrics"
	"selefli/internal/push"
	"selefli/internal/repository"
	"selefli/internal/service"
	"selefli/internal/storage"
	"selefli/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

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

	db, err := database.NewDB(cfg.Database, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()
	if redisClient != nil {
		repository.NewRealtimePublisher(redisClient, logging.Component(logger, "realtime")).Subscribe(eventBus)
	}

	var pusher domain.PushEnqueuer
	if pushWorker := initPushWorker(cfg, db, redisClient, logger); pushWorker != nil {
		go pushWorker.Start(ctx)
		pusher = pushWorker
	}

	store := storage.NewSupabaseStore(cfg.Storage, logging.Component(logger, "storage"))
	notifications := service.NewNotificationService(db, eventBus, pusher, logging.Component(logger, "notifications"))
	users := service.NewUserService(db, store, cfg.Storage.AvatarBucket, logging.Component(logger, "users"))
	if !cfg.Identity.Configured() {
		logger.Warn().Msg("identity provider not configured, signup and login will answer 503")
	}
	authProvider := identity.NewSupabaseAuth(cfg.Identity, logging.Component(logger, "identity"))
	services := api.Services{
		Users:         users,
		Items:         service.NewItemService(db, store, notifications, cfg.Storage.Bucket, logging.Component(logger, "items")),
		Bookings:      service.NewBookingService(db, notifications, eventBus, logging.Component(logger, "bookings")),
		Ratings:       service.NewRatingService(db, notifications, eventBus, logging.Component(logger, "ratings")),
		Notifications: notifications,
		Devices:       service.NewDeviceService(db, logging.Component(logger, "devices")),
		Accounts:      service.NewAccountService(db, authProvider, users, logging.Component(logger, "accounts")),
	}

	if err := startScheduler(ctx, cfg, db, notifications, logger); err != nil {
		return err
	}

	httpServer := api.NewHTTPServer(cfg.API, services, logger, serverOptions(cfg, db, redisClient, logger)...)

	startMetrics(ctx, cfg, logger)

	return startServer(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	redisClient := repository.NewRedisClient(cfg.Redis)
	if redisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initPushWorker(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.PushWorker {
	if !cfg.Push.Enabled {
		logger.Info().Msg("push delivery disabled")
		return nil
	}
	sender := push.NewFCMClient(cfg.Push, logging.Component(logger, "fcm"))
	if !sender.Configured() {
		logger.Warn().Msg("push enabled but no server key configured, push delivery disabled")
		return nil
	}
	return worker.NewPushWorker(
		db,
		sender,
		redisClient,
		worker.RetryPolicyFromConfig(cfg.Push.Retry),
		cfg.Push.PollInterval,
		logging.Component(logger, "push-worker"),
	)
}

func startScheduler(ctx context.Context, cfg *config.Config, db *database.DB, notifier domain.Notifier, logger *zerolog.Logger) error {
	if !cfg.Scheduler.Enabled {
		return nil
	}
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("load scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	scheduler := worker.NewReminderScheduler(db, notifier, cfg.Scheduler.Spec, loc, logging.Component(logger, "reminders"))
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}
	logger.Info().Str("spec", cfg.Scheduler.Spec).Str("timezone", loc.String()).Msg("reminder scheduler started")
	return nil
}

func serverOptions(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) []api.Option {
	opts := []api.Option{
		api.WithStorageConfigured(cfg.Storage.Configured()),
		api.WithReadinessCheck("database", db.PingContext),
	}

	var userLimiter domain.RateLimiter = repository.NewMemoryRateLimiter()
	if redisClient != nil {
		userLimiter = repository.NewFailoverRateLimiter(
			repository.NewRedisRateLimiter(redisClient),
			userLimiter,
			logging.Component(logger, "rate-limiter"),
		)
		opts = append(opts, api.WithReadinessCheck("redis", func(ctx context.Context) error {
			return repository.Ping(ctx, redisClient)
		}))
	}
	return append(opts, api.WithUserRateLimiter(userLimiter))
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
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
