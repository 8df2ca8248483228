package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/apievolve/pkg/api"
	"github.com/platinummonkey/apievolve/pkg/config"
	"github.com/platinummonkey/apievolve/pkg/middleware"
	"github.com/platinummonkey/apievolve/pkg/observability"
	"github.com/platinummonkey/apievolve/pkg/service"
	"github.com/platinummonkey/apievolve/pkg/storage"
	"github.com/platinummonkey/apievolve/pkg/storage/sqlstore"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server failed")
		os.Exit(1)
	}
}

// backend is the opened revision store and the handles its health depends on
type backend struct {
	store   storage.Store
	fs      *storage.FileSystemStore
	sql     *sqlstore.Store
	db      *sql.DB
	redis   *redis.Client
	cleanup func() error
}

func openBackend(ctx context.Context, cfg storage.Config, logger *observability.Logger) (*backend, error) {
	if cfg.Type == "filesystem" {
		if err := os.MkdirAll(cfg.FilesystemRoot, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		fs, err := storage.NewFileSystemStore(cfg.FilesystemRoot)
		if err != nil {
			return nil, err
		}
		logger.WithField("root", cfg.FilesystemRoot).Info("Filesystem storage initialized")
		return &backend{store: fs, fs: fs, cleanup: fs.Close}, nil
	}

	store, err := sqlstore.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	b := &backend{store: store, sql: store, db: store.DB(), cleanup: store.Close}
	logger.WithFields(map[string]interface{}{
		"type":     cfg.Type,
		"replicas": len(cfg.ReplicaURLs),
		"s3":       cfg.S3Bucket != "",
	}).Info("SQL storage initialized")

	if cfg.RedisURL != "" {
		client, err := sqlstore.NewRedisClient(ctx, cfg)
		if err != nil {
			store.Close()
			return nil, err
		}
		cache := sqlstore.NewRedisCache(store, client, cfg.CacheTTL, logger)
		b.store, b.redis, b.cleanup = cache, client, cache.Close
		logger.Info("Redis revision cache enabled")
	}
	return b, nil
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := cfg.Observability
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        obs.OTelEnabled,
		Endpoint:       obs.OTelEndpoint,
		ServiceName:    obs.OTelServiceName,
		ServiceVersion: obs.OTelServiceVersion,
		Insecure:       obs.OTelInsecure,
		SampleRatio:    obs.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if obs.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	b, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	svcConfig := cfg.Service.Cache
	svcConfig.Backend = cfg.Storage.Type
	svc := service.New(b.store, svcConfig, logger, metrics)

	// background work stops before the store is closed
	bgCtx, cancel := context.WithCancel(context.Background())

	health := observability.NewHealthChecker(b.db, b.redis).WithVersion(obs.OTelServiceVersion)
	health.AddCheck("storage", true, b.store.HealthCheck)

	apiServer := api.NewServer(svc, api.Options{
		Logger:       logger,
		Metrics:      metrics,
		Registry:     registry,
		Health:       health,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		RateLimiter:  newRateLimiter(bgCtx, cfg.Server, b.redis),
	})
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if registry != nil {
		healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return nil
	})

	if cfg.Service.WarmSchedule != "" {
		warmer, err := service.NewWarmer(svc, service.WarmerConfig{
			Schedule:    cfg.Service.WarmSchedule,
			Concurrency: cfg.Service.WarmConcurrency,
		}, logger)
		if err != nil {
			cancel()
			b.cleanup()
			return err
		}
		go func() {
			defer observability.RecoverPanic(logger, "initial warm-up")
			if _, err := warmer.Warm(bgCtx); err != nil {
				logger.WithError(err).Warn("Initial warm-up failed")
			}
		}()
		warmer.Start()
		shutdown.RegisterShutdownFunc(warmer.Stop)
		logger.WithField("schedule", cfg.Service.WarmSchedule).Info("History warm-up scheduled")
	}

	if cfg.Service.WatchFilesystem && b.fs != nil {
		changes, err := b.fs.Watch(bgCtx)
		if err != nil {
			cancel()
			b.cleanup()
			return err
		}
		go svc.WatchInvalidations(bgCtx, changes)
		logger.Info("Watching filesystem storage for changes")
	}

	if b.sql != nil {
		b.sql.Connections().StartHealthCheckRoutine(bgCtx, 30*time.Second)
		if metrics != nil {
			go reportDBStats(bgCtx, b.db, metrics, logger)
		}
	}

	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return b.cleanup()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	serve := func(server *http.Server, name string) {
		logger.WithField("addr", server.Addr).Infof("Starting %s server", name)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Errorf("%s server failed", name)
			stop()
		}
	}
	go serve(httpServer, "API")
	go serve(healthServer, "health")

	return shutdown.Wait(ctx)
}

// newRateLimiter returns nil when rate limiting is disabled. Instances share
// limits through Redis when a Redis cache is configured.
func newRateLimiter(ctx context.Context, cfg config.ServerConfig, client *redis.Client) middleware.Limiter {
	if cfg.RateLimit == 0 {
		return nil
	}
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.RateLimitBurst,
	}
	if client != nil {
		return middleware.NewDistributedRateLimiter(client, limits, "")
	}
	limiter := middleware.NewRateLimiter(limits)
	limiter.StartCleanup(ctx)
	return limiter
}

// reportDBStats copies database pool statistics into metrics until ctx is done
func reportDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics, logger *observability.Logger) {
	defer observability.RecoverPanic(logger, "database stats")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		metrics.UpdateDBStats(db.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
