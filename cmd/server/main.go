// Package main provides the API server entry point for the repinning service.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nft-repin/internal/api"
	"github.com/nft-repin/internal/config"
	"github.com/nft-repin/internal/engine"
	"github.com/nft-repin/internal/gateway"
	"github.com/nft-repin/internal/indexer"
	"github.com/nft-repin/internal/logging"
	"github.com/nft-repin/internal/ratelimit"
	"github.com/nft-repin/internal/retry"
	"github.com/nft-repin/internal/service"
	"github.com/nft-repin/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		logging.ParseFormat(cfg.Logging.Format),
	)
	logging.SetDefault(logger)

	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Outcome cache: Redis-backed when reachable, memory-only otherwise.
	// Pin outcomes are an optimization, so a missing Redis is not fatal.
	var outcomeCache storage.OutcomeCache
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, using in-memory outcome cache")
		outcomeCache = storage.NewMemoryOutcomeCache()
	} else {
		defer redis.Close()
		outcomeCache = storage.NewLayeredOutcomeCache(
			storage.NewRedisOutcomeCache(redis, cfg.Engine.OutcomeCacheTTL),
		)
		logger.Info("Redis outcome cache initialized")
	}

	// Run persistence: optional, the service keeps runs in memory when
	// Postgres is not configured.
	var (
		runStore   service.RunStore
		assetStore service.AssetStore
		taskStore  service.TaskStore
	)
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Warn("Postgres unavailable, run history will not be persisted")
	} else {
		defer postgres.Close()
		runStore = storage.NewRunRepository(postgres)
		assetStore = storage.NewAssetRepository(postgres)
		taskStore = storage.NewTaskRepository(postgres)
		logger.Info("Postgres connection established")
	}

	// Indexer client for collection lookups
	fetcher := indexer.NewClient(cfg.Indexer.BaseURL, cfg.Indexer.Timeout)
	logger.WithField("baseUrl", cfg.Indexer.BaseURL).Info("Indexer client initialized")

	// Migration engine options
	engineOpts := engine.Options{
		Workers:        cfg.Engine.Workers,
		PerCallTimeout: cfg.Engine.PerCallTimeout,
		Verify:         cfg.Engine.Verify,
		Retry: &retry.Policy{
			MaxAttempts:  cfg.Engine.MaxAttempts,
			InitialDelay: cfg.Engine.InitialDelay,
			MaxDelay:     cfg.Engine.MaxDelay,
			Multiplier:   2.0,
		},
	}
	if cfg.Engine.RequestsPerSec > 0 {
		engineOpts.RateLimit = ratelimit.New(cfg.Engine.RequestsPerSec, cfg.Engine.Workers)
	}

	collectionService := service.NewCollectionService(service.Deps{
		Fetcher:    fetcher,
		Cache:      outcomeCache,
		EngineOpts: engineOpts,
		RunStore:   runStore,
		AssetStore: assetStore,
		TaskStore:  taskStore,
	})

	gatewayClient := gateway.NewClient(cfg.Gateway.Gateways, cfg.Gateway.Timeout)

	serverConfig := api.DefaultServerConfig(cfg.Server.Host, cfg.Server.Port)
	server := api.NewServer(serverConfig, collectionService, gatewayClient)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
