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

	"reservas/internal/api"
	"reservas/internal/config"
	"reservas/internal/database"
	"reservas/internal/domain"
	"reservas/internal/events"
	"reservas/internal/identity"
	"reservas/internal/logging"
	"reservas/internal/metrics"
	"reservas/internal/repository"
	"reservas/internal/service"
	"reservas/internal/worker"

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

	db, err := database.NewDB(cfg.Database.Path, logger, database.BookingSchema)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}
	idem := initIdempotency(redisClient, logger)

	// interfaces stay nil when identity is off so the API skips auth
	var (
		verifier domain.TokenVerifier
		tokens   domain.TokenSource
	)
	if cfg.Identity.Enabled {
		client := identity.NewClient(cfg.Identity, logging.Component(logger, "identity"))
		verifier, tokens = client, client
	}

	projector := events.NewProjector(db, logging.Component(logger, "projector"))
	bootstrap(ctx, cfg, tokens, projector, logger)

	// background goroutines use db; they are cancelled and drained before it closes
	var background sync.WaitGroup
	defer func() {
		stop()
		background.Wait()
	}()

	reader := events.NewKafkaReader(cfg.Kafka)
	consumer := events.NewConsumer(reader, projector, worker.PolicyFromConfig(cfg.Kafka.Retry), logging.Component(logger, "consumer"))
	background.Add(1)
	go func() {
		defer background.Done()
		defer func() { _ = reader.Close() }()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("catalog consumer stopped; shutting down")
			stop()
		}
	}()
	startBackups(ctx, &background, db, "booking", cfg.Backup, logger)

	bookings := service.NewBookingService(db, db, domain.SystemClock, cfg.Booking, logging.Component(logger, "booking"))
	reservationTypes := service.NewReservationTypeService(db, logging.Component(logger, "reservation-types"))

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, bookings, verifier, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewBookingHTTPServer(cfg.API, bookings, reservationTypes, verifier, idem, logging.Component(logger, "http"))

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/booking.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App, "booking")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(logger, "booking-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		// the failover store keeps retrying redis, so the client is kept
		logger.Warn().Err(err).Msg("redis unreachable at startup, idempotency falls back to memory")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func initIdempotency(client *redis.Client, logger *zerolog.Logger) domain.IdempotencyStore {
	memory := repository.NewMemoryIdempotencyStore()
	if client == nil {
		logger.Info().Msg("redis not configured, idempotency keys kept in memory")
		return memory
	}
	return repository.NewFailoverIdempotencyStore(repository.NewRedisIdempotencyStore(client), memory, logger)
}

// bootstrap seeds the projection from the catalog API. Failure is not fatal:
// the consumer replays the topic from the committed offset anyway.
func bootstrap(ctx context.Context, cfg *config.Config, tokens domain.TokenSource, projector *events.Projector, logger *zerolog.Logger) {
	if !cfg.Catalog.Bootstrap || cfg.Catalog.BaseURL == "" {
		return
	}
	client := api.NewCatalogClient(cfg.Catalog.BaseURL, tokens, cfg.Identity.Timeout)
	n, err := service.BootstrapProjection(ctx, client, projector, domain.SystemClock, logger)
	if err != nil {
		logger.Warn().Err(err).Str("catalog", cfg.Catalog.BaseURL).Msg("projection bootstrap failed")
		return
	}
	logger.Info().Int("spaces", n).Msg("projection bootstrapped from catalog")
}

func startBackups(ctx context.Context, wg *sync.WaitGroup, db *database.DB, prefix string, cfg config.BackupConfig, logger *zerolog.Logger) {
	if !cfg.Enabled {
		return
	}
	backups := database.NewBackupService(db, prefix, cfg, logging.Component(logger, "backup"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		backups.Start(ctx)
	}()
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.Server,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("booking service started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("booking service stopped")
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
