package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scarson/optilink-monitor/internal/api"
	"github.com/scarson/optilink-monitor/internal/cache"
	"github.com/scarson/optilink-monitor/internal/database"
	"github.com/scarson/optilink-monitor/internal/ingest"
	"github.com/scarson/optilink-monitor/internal/logging"
	"github.com/scarson/optilink-monitor/internal/queue"
	"github.com/scarson/optilink-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log)
	logger.Info("Starting OptiLink ingestion server")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to database")

	if err := db.RunMigrations("migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicMetrics, 4, 1); err != nil {
		logger.WithError(err).Warn("Topic creation failed (may already exist)")
	}

	alerts := ingest.NewAlertManager(cfg.Thresholds)
	pipeline := ingest.NewPipeline(db, alerts, cfg.Retention.Window, cfg.Retention.SweepPeriod, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Retention cleanup runs on its own period, sharing the store's delete
	// path with ingestion.
	go pipeline.RetentionLoop(ctx)

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicMetrics, cfg.Kafka.GroupID)
	defer consumer.Close()

	bridge := queue.NewBridge(consumer, pipeline, logger)
	go bridge.Run(ctx)
	logger.WithField("group", cfg.Kafka.GroupID).Info("Kafka ingestion bridge started")

	var live api.LiveReader
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unavailable, live view disabled")
	} else {
		live = cache.NewLatest(redisClient, cfg.Redis.TTL)
		logger.Info("Connected to Redis")
	}

	handler := api.NewHandler(db, pipeline, alerts, live, logger)
	router := api.NewRouter(handler, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.API.Port).Info("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("API server failed: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API server shutdown failed")
	}
}
