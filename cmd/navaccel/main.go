// cmd/navaccel/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/FairForge/navaccel/internal/accelerator"
	"github.com/FairForge/navaccel/internal/api"
	"github.com/FairForge/navaccel/internal/cache"
	"github.com/FairForge/navaccel/internal/config"
	"github.com/FairForge/navaccel/internal/fetchers"
	"github.com/FairForge/navaccel/internal/loader"
	"github.com/FairForge/navaccel/internal/logging"
	"github.com/FairForge/navaccel/internal/metrics"
	"github.com/FairForge/navaccel/internal/predictor"
	"github.com/FairForge/navaccel/internal/prefetch"
	"github.com/FairForge/navaccel/internal/scheduler"
)

func main() {
	// Create config
	cfgPath := config.GetEnvOrDefault("NAVACCEL_CONFIG", "")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "navaccel: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	logger, err := logging.New(cfg.Server.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "navaccel: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewCollector(reg)
	sched := scheduler.NewRealScheduler()

	c, err := cache.NewManager[any](cfg.Cache.Config, sched, logger, m)
	if err != nil {
		logger.Fatal("failed to create cache", zap.Error(err))
	}

	graph, err := cfg.Graph()
	if err != nil {
		logger.Fatal("invalid route graph", zap.Error(err))
	}
	pred, err := predictor.New(graph, cfg.Predictor.Config, nil, sched, logger, m)
	if err != nil {
		logger.Fatal("failed to create predictor", zap.Error(err))
	}

	// Add bundle loader based on environment
	ldr, loaderMode, err := newLoader(ctx, logger)
	if err != nil {
		logger.Fatal("failed to create loader", zap.Error(err))
	}
	routes, err := prefetch.NewRoutePrefetcher(c, ldr, sched, cfg.Prefetch, logger, m)
	if err != nil {
		logger.Fatal("failed to create route prefetcher", zap.Error(err))
	}
	defer routes.Close()

	requirements := map[string][]prefetch.Fetcher{}
	if dsn := os.Getenv("NAVACCEL_DATABASE_URL"); dsn != "" {
		var db *sql.DB
		db, err = fetchers.Open(ctx, dsn)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		requirements = fetchers.DashboardRequirements(db)
		logger.Info("data prefetch enabled", zap.Int("routes", len(requirements)))
	}
	data, err := prefetch.NewDataPrefetcher(c, requirements, logger, m)
	if err != nil {
		logger.Fatal("failed to create data prefetcher", zap.Error(err))
	}

	acc, err := accelerator.New(pred, routes, data, c, sched, cfg.Accelerator(), logger)
	if err != nil {
		logger.Fatal("failed to create accelerator", zap.Error(err))
	}

	if cfgPath != "" {
		go func() {
			err := config.Watch(ctx, cfgPath, logger, func(next *config.Config) {
				g, err := next.Graph()
				if err != nil {
					logger.Error("reloaded graph rejected", zap.Error(err))
					return
				}
				acc.SwapGraph(g)
			})
			if err != nil {
				logger.Error("config watch stopped", zap.Error(err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Addr, api.Deps{
		Accelerator: acc,
		Cache:       c,
		Routes:      routes,
		Data:        data,
		Registry:    reg,
	}, api.NewRateLimiter(50, 100), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("navaccel started",
		zap.String("addr", cfg.Server.Addr),
		zap.String("loader", loaderMode),
		zap.Int("routes", len(graph.Paths())),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLoader(ctx context.Context, logger *zap.Logger) (prefetch.Loader, string, error) {
	if base := os.Getenv("NAVACCEL_BUNDLE_URL"); base != "" {
		l, err := loader.NewHTTPLoader(base, nil, logger)
		return l, "http", err
	}

	if bucket := os.Getenv("NAVACCEL_BUNDLE_BUCKET"); bucket != "" {
		client, err := loader.NewS3Client(ctx, loader.S3Options{
			Endpoint:  os.Getenv("NAVACCEL_S3_ENDPOINT"),
			Region:    os.Getenv("NAVACCEL_S3_REGION"),
			AccessKey: os.Getenv("NAVACCEL_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("NAVACCEL_S3_SECRET_KEY"),
		})
		if err != nil {
			return nil, "", err
		}
		l, err := loader.NewS3Loader(client, bucket,
			os.Getenv("NAVACCEL_BUNDLE_PREFIX"),
			config.GetEnvOrDefault("NAVACCEL_BUNDLE_SUFFIX", ".js"),
			logger,
		)
		return l, "s3", err
	}

	return loader.Noop{}, "noop", nil
}
