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
	"gopkg.in/yaml.v2"
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

	db, err := database.NewDB(cfg.Database.Path, logger, database.CatalogSchema)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer := events.NewKafkaWriter(cfg.Kafka)
	publisher := events.NewKafkaPublisher(writer, logging.Component(logger, "publisher"))
	defer (func() { _ = publisher.Close() })()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	outbox := worker.NewOutboxWorker(
		db,
		publisher,
		redisClient,
		worker.PolicyFromConfig(cfg.Outbox.Retry),
		cfg.Outbox.PollInterval,
		cfg.Outbox.BatchSize,
		logging.Component(logger, "outbox"),
	)
	reportFailedTasks(ctx, db, logger)

	// the outbox and backups use db, redis and the publisher; drain them first
	var background sync.WaitGroup
	defer func() {
		stop()
		background.Wait()
	}()
	background.Add(1)
	go func() {
		defer background.Done()
		outbox.Start(ctx)
	}()
	startBackups(ctx, &background, db, "catalog", cfg.Backup, logger)

	catalog := service.NewCatalogService(db, publisher, outbox, domain.SystemClock, logging.Component(logger, "catalog"))
	if err := seedCatalog(ctx, cfg.Catalog.SeedPath, catalog, logger); err != nil {
		return err
	}

	var verifier domain.TokenVerifier
	if cfg.Identity.Enabled {
		verifier = identity.NewClient(cfg.Identity, logging.Component(logger, "identity"))
	}
	httpServer := api.NewCatalogHTTPServer(cfg.API, catalog, verifier, logging.Component(logger, "http"))

	startMetrics(ctx, cfg, logger)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()
	logger.Info().Int("http_port", cfg.API.HTTP.Port).Str("topic", cfg.Kafka.Topic).Msg("catalog service started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("catalog service stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/catalog.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App, "catalog")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(logger, "catalog-main"), closer, nil
}

// initRedis returns nil when redis is not configured or unreachable; the
// outbox then records dead letters only in the database.
func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without dead-letter list")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

type seedFile struct {
	Types  []service.SpaceTypeInput `yaml:"types"`
	Spaces []service.SpaceInput     `yaml:"spaces"`
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

// seedCatalog creates the spaces listed in the seed file when the catalog is empty.
func seedCatalog(ctx context.Context, path string, catalog *service.CatalogService, logger *zerolog.Logger) error {
	if path == "" {
		return nil
	}
	existing, err := catalog.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("seed_path", path).Msg("seed file not found, starting with an empty catalog")
			return nil
		}
		logger.Error().Err(err).Str("seed_path", path).Msg("read seed file")
		return err
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("parse seed file")
		return err
	}

	// types come first so the spaces can refer to them by position, starting at 1
	for _, in := range seed.Types {
		if _, err := catalog.CreateSpaceType(ctx, in); err != nil && !errors.Is(err, service.ErrSpaceTypeNameTaken) {
			return fmt.Errorf("seed space type %q: %w", in.Name, err)
		}
	}
	for _, in := range seed.Spaces {
		res, err := catalog.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("seed space %q: %w", in.Name, err)
		}
		if res.PublishErr != nil {
			logger.Warn().Int64("space_id", res.Space.ID).Msg("seeded space queued for republish")
		}
	}
	logger.Info().Int("types", len(seed.Types)).Int("spaces", len(seed.Spaces)).Str("seed_path", path).Msg("catalog seeded")
	return nil
}

func reportFailedTasks(ctx context.Context, db *database.DB, logger *zerolog.Logger) {
	failed, err := db.GetFailedPublishTasks(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("list failed publish tasks")
		return
	}
	if len(failed) > 0 {
		logger.Warn().Int("count", len(failed)).Msg("catalog events gave up after retries; run a resync")
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
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
