package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-relay/internal/config"
	"github.com/DeafMist/news-relay/internal/dedupe"
	"github.com/DeafMist/news-relay/internal/elasticsearch"
	"github.com/DeafMist/news-relay/internal/feed"
	"github.com/DeafMist/news-relay/internal/logger"
	"github.com/DeafMist/news-relay/internal/metrics"
	"github.com/DeafMist/news-relay/internal/mongo"
	"github.com/DeafMist/news-relay/internal/publisher"
	"github.com/DeafMist/news-relay/internal/startup"
)

func main() {
	log := logger.New("publisher")
	cfg, err := config.LoadPublisher()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	backend, closeBackend, err := openSeenSet(ctx, log, cfg)
	if err != nil {
		log.Error("init seen-set", slog.String("backend", cfg.SeenBackend), slog.Any("err", err))
		os.Exit(1)
	}
	defer closeBackend()

	seen := dedupe.NewCachedSet(backend, dedupe.NewCache(cfg.SeenCacheCapacity, cfg.SeenCacheTTL))

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Error("close kafka writer", slog.Any("err", err))
		}
	}()

	source := feed.NewClient(&http.Client{Timeout: cfg.FeedTimeout}, cfg.FeedURL, cfg.FeedCharset)
	p := publisher.New(source, seen, writer, log)

	go metrics.Serve(ctx, cfg.MetricsAddr, log)

	log.Info("publisher started",
		slog.String("feed", source.URL()),
		slog.String("topic", cfg.Topic),
		slog.String("seen_backend", cfg.SeenBackend),
		slog.Duration("period", cfg.FetchPeriod),
	)
	p.Run(ctx, cfg.FetchPeriod)
}

func openSeenSet(ctx context.Context, log *slog.Logger, cfg *config.Publisher) (dedupe.Backend, func(), error) {
	switch cfg.SeenBackend {
	case config.SeenBackendElasticsearch:
		es, err := startup.Connect(ctx, log, "elasticsearch", startup.DefaultBackoff, func(ctx context.Context) (*elasticsearch.Client, error) {
			c, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
			if err != nil {
				return nil, err
			}
			if err := c.Ping(ctx); err != nil {
				return nil, err
			}
			return c, nil
		})
		if err != nil {
			return nil, nil, err
		}
		return es, func() {}, nil

	case config.SeenBackendMongo:
		set, err := startup.Connect(ctx, log, "mongo", startup.DefaultBackoff, func(ctx context.Context) (*mongo.SeenSet, error) {
			return mongo.New(ctx, cfg.MongoURL, cfg.MongoCollection)
		})
		if err != nil {
			return nil, nil, err
		}
		return set, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := set.Close(closeCtx); err != nil {
				log.Error("close mongo", slog.Any("err", err))
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown seen-set backend %q", cfg.SeenBackend)
	}
}
