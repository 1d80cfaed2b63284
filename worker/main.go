package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-relay/internal/config"
	"github.com/DeafMist/news-relay/internal/ingest"
	"github.com/DeafMist/news-relay/internal/logger"
	"github.com/DeafMist/news-relay/internal/metrics"
	"github.com/DeafMist/news-relay/internal/redisstore"
	"github.com/DeafMist/news-relay/internal/startup"
)

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := startup.Connect(ctx, log, "redis", startup.DefaultBackoff, func(ctx context.Context) (*redisstore.Store, error) {
		return redisstore.New(ctx, cfg.RedisURL)
	})
	if err != nil {
		log.Error("init redis", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	newReader := func() ingest.BatchReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.ConsumerGroup,
			QueueCapacity:  cfg.BatchSize,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        cfg.BatchWait,
			StartOffset:    kafka.FirstOffset,
			CommitInterval: 0, // manual commit only
		})
	}

	consumer := ingest.NewConsumer(store, cfg.StoreTTL, cfg.StalenessHorizon, log)
	pool := ingest.NewPool(cfg.Concurrency, newReader, consumer, ingest.RunnerConfig{
		BatchSize:    cfg.BatchSize,
		BatchWait:    cfg.BatchWait,
		RetryBackoff: cfg.RetryBackoff,
	}, log)

	go metrics.Serve(ctx, cfg.MetricsAddr, log)

	log.Info("worker started",
		slog.String("topic", cfg.Topic),
		slog.String("group", cfg.ConsumerGroup),
		slog.Int("concurrency", pool.Size()),
		slog.Int("batch_size", cfg.BatchSize),
	)

	if err := pool.Run(ctx); err != nil {
		log.Error("worker pool stopped", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("worker stopped")
}
