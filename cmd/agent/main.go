package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/scarson/optilink-monitor/internal/agent"
	"github.com/scarson/optilink-monitor/internal/analytics"
	"github.com/scarson/optilink-monitor/internal/cache"
	"github.com/scarson/optilink-monitor/internal/history"
	"github.com/scarson/optilink-monitor/internal/logging"
	"github.com/scarson/optilink-monitor/internal/queue"
	"github.com/scarson/optilink-monitor/internal/shmem"
	"github.com/scarson/optilink-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log)
	logger.Info("Starting OptiLink monitoring agent")

	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMetrics)
	defer producer.Close()
	logger.WithField("topic", cfg.Kafka.TopicMetrics).Info("Kafka producer initialized")

	var latest agent.LatestCache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.WithError(err).Warn("Redis unavailable, live cache disabled")
	} else {
		latest = cache.NewLatest(redisClient, cfg.Redis.TTL)
		logger.Info("Connected to Redis")
	}

	a := agent.New(agent.Options{
		Open: func() (agent.Source, error) {
			return shmem.Open(cfg.Device.Path, cfg.Device.NumSites)
		},
		History:       history.NewStore(cfg.History.RetainedWindow),
		Engine:        analytics.NewStatistical(),
		Sink:          producer,
		Cache:         latest,
		PollInterval:  cfg.Device.PollInterval,
		RetryBackoff:  cfg.Device.RetryBackoff,
		AnomalyWindow: cfg.History.AnomalyWindow,
		Log:           logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("device", cfg.Device.Path).Info("Agent is running")
	a.Run(ctx)

	logger.Info("Shutting down gracefully")
}
