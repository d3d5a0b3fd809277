package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/regionscan/regionscan/internal/api"
	"github.com/regionscan/regionscan/internal/auth"
	"github.com/regionscan/regionscan/internal/config"
	"github.com/regionscan/regionscan/internal/engine"
	"github.com/regionscan/regionscan/internal/export"
	"github.com/regionscan/regionscan/internal/maintenance"
	"github.com/regionscan/regionscan/internal/observability"
	duckdbengine "github.com/regionscan/regionscan/internal/query/duckdb"
	s3store "github.com/regionscan/regionscan/internal/storage/s3"
	"github.com/regionscan/regionscan/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("regionscan-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	backend, err := store.Connect(context.Background(), cfg.Store, cfg.Scan.TargetPartitions)
	if err != nil {
		logger.Error("failed to connect store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = backend.Close() }()

	objectStore, err := s3store.New(context.Background(), cfg.ObjectStore)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	runner := engine.NewRunner(cfg.Scan.Concurrency, logger)
	retention := &maintenance.Service{
		ObjectStore: objectStore,
		Config: maintenance.Config{
			Prefix:            cfg.Export.Prefix,
			RetentionInterval: cfg.Maintenance.RetentionInterval,
			KeepExports:       cfg.Maintenance.KeepExports,
			SafetyAge:         cfg.Maintenance.SafetyAge,
		},
		Logger: logger,
	}
	deps := api.Dependencies{
		Logger:      logger,
		Tables:      api.NewTableCatalog(backend.Store, backend.Descriptor, logger),
		Runner:      runner,
		QueryEngine: duckdbengine.NewEngine(runner, objectStore),
		Exporter: &export.Exporter{
			Store:        objectStore,
			Runner:       runner,
			Prefix:       cfg.Export.Prefix,
			AllOrNothing: cfg.Export.AllOrNothing,
			Logger:       logger,
		},
		Maintenance: retention,
		Readiness: api.CombineReadinessChecks(
			api.CheckStore(backend.DB.PingContext),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("store", backend.Descriptor.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	if cfg.Maintenance.RetentionInterval > 0 {
		go func() {
			logger.Info("starting export retention", slog.Duration("interval", cfg.Maintenance.RetentionInterval), slog.Int("keep", cfg.Maintenance.KeepExports))
			if err := retention.Run(ctx); err != nil {
				logger.Error("export retention stopped", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
