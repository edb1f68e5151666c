package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reading-progression/internal/config"
	"github.com/reading-progression/internal/handler"
	"github.com/reading-progression/internal/kafka"
	"github.com/reading-progression/internal/postgres"
	"github.com/reading-progression/internal/ranking"
	"github.com/reading-progression/internal/redis"
	"github.com/reading-progression/internal/service"
	"github.com/reading-progression/internal/websocket"
	"github.com/reading-progression/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis leaderboard mirror. Rankings fall back to the
	// durable snapshots in Postgres when the mirror is unavailable.
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rankingsCache, err := redis.NewRankings(&cfg.Redis, logger)
	var cache ranking.Cache
	if err != nil {
		logger.Warn("failed to connect to Redis, serving rankings from database", "error", err)
	} else {
		defer rankingsCache.Close()
		cache = rankingsCache
		logger.Info("connected to Redis")
	}

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresRepo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := postgresRepo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize ranking pipeline
	aggregator := ranking.NewAggregator(postgresRepo, cache, cfg.Progression.ReviewExp, logger)
	selector := ranking.NewChampionSelector(aggregator, postgresRepo, ranking.ChampionConfig{
		PoolSize:     cfg.Progression.ChampionPoolSize,
		StreakWeight: cfg.Progression.StreakWeight,
		PagesWeight:  cfg.Progression.PagesWeight,
	}, logger)

	// Initialize progression service
	progressionService := service.NewProgressionService(
		postgresRepo,
		aggregator,
		selector,
		service.Config{
			StreakBonusPerDay: cfg.Progression.StreakBonusPerDay,
			ReviewExp:         cfg.Progression.ReviewExp,
		},
		logger,
	)

	// Initialize recompute worker
	recomputeWorker := worker.NewRecomputeWorker(
		aggregator,
		postgresRepo,
		wsHub,
		&cfg.Recompute,
		logger,
	)
	progressionService.SetRecomputer(recomputeWorker)

	// Rebuild the Redis mirror from snapshots on startup (recovery)
	if cache != nil {
		logger.Info("rebuilding ranking cache from database")
		if err := aggregator.RebuildCache(ctx); err != nil {
			logger.Warn("failed to rebuild ranking cache on startup", "error", err)
		}
	}

	// Start recompute worker
	if cfg.Recompute.Enabled {
		if err := recomputeWorker.Start(ctx); err != nil {
			logger.Error("failed to start recompute worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-volume reading-log ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, progressionService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(progressionService, wsHub, &cfg.Progression, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop recompute worker
	if err := recomputeWorker.Stop(); err != nil {
		logger.Error("failed to stop recompute worker", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
