// Package ingest consumes article batches from Kafka and persists them into
// the time-bounded store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-relay/internal/logger"
	"github.com/DeafMist/news-relay/internal/metrics"
	"github.com/DeafMist/news-relay/internal/models"
)

// Outcome is the result of processing one message.
type Outcome int

const (
	OutcomePersisted Outcome = iota
	OutcomeSkippedDuplicate
	OutcomeSkippedStale
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePersisted:
		return "persisted"
	case OutcomeSkippedDuplicate:
		return "skipped-duplicate"
	case OutcomeSkippedStale:
		return "skipped-stale"
	default:
		return "failed"
	}
}

// Store is the subset of the time-bounded store the consumer writes to.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Consumer applies the staleness and idempotency filters to each message and
// stores survivors with an expiry.
type Consumer struct {
	store   Store
	ttl     time.Duration
	horizon time.Duration
	log     *slog.Logger
	now     func() time.Time
}

// NewConsumer creates a Consumer. ttl is the expiry of stored articles and
// horizon the maximum age of an article's publish time.
func NewConsumer(store Store, ttl, horizon time.Duration, log *slog.Logger) *Consumer {
	return &Consumer{
		store:   store,
		ttl:     ttl,
		horizon: horizon,
		log:     logger.OrDiscard(log),
		now:     time.Now,
	}
}

// WithClock replaces the time source used by the staleness filter.
func (c *Consumer) WithClock(now func() time.Time) *Consumer {
	c.now = now
	return c
}

// ProcessMessage handles a single payload.
func (c *Consumer) ProcessMessage(ctx context.Context, value []byte) (Outcome, error) {
	article, err := models.DecodeArticle(value)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("decode article: %w", err)
	}

	if article.HasPublishedAt() && article.PublishedAt.Before(c.now().Add(-c.horizon)) {
		c.log.Debug("skipping stale article",
			slog.String("guid", article.ID),
			slog.Time("published_at", article.PublishedAt),
		)
		return OutcomeSkippedStale, nil
	}

	key := models.StorageKey(article.ID)
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("check %s: %w", key, err)
	}
	if exists {
		c.log.Info("article already stored", slog.String("guid", article.ID), slog.String("title", article.Title))
		return OutcomeSkippedDuplicate, nil
	}

	payload, err := models.EncodeArticle(article)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("encode article: %w", err)
	}
	if err := c.store.Set(ctx, key, payload, c.ttl); err != nil {
		return OutcomeFailed, fmt.Errorf("store %s: %w", key, err)
	}

	c.log.Debug("stored article", slog.String("guid", article.ID), slog.String("title", article.Title))
	return OutcomePersisted, nil
}

// ConsumeBatch processes msgs in order and reports whether the batch may be
// acknowledged. Processing stops at the first failing message.
func (c *Consumer) ConsumeBatch(ctx context.Context, msgs []kafka.Message) bool {
	var persisted, duplicates, stale int
	for _, msg := range msgs {
		outcome, err := c.ProcessMessage(ctx, msg.Value)
		if err != nil {
			c.log.Error("batch aborted, not acknowledging",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("batch_size", len(msgs)),
			)
			c.record(persisted, duplicates, stale)
			return false
		}

		switch outcome {
		case OutcomePersisted:
			persisted++
		case OutcomeSkippedDuplicate:
			duplicates++
		case OutcomeSkippedStale:
			stale++
		}
	}

	c.record(persisted, duplicates, stale)
	c.log.Info("batch processed",
		slog.Int("batch_size", len(msgs)),
		slog.Int("persisted", persisted),
		slog.Int("duplicates", duplicates),
		slog.Int("stale", stale),
	)
	return true
}

func (c *Consumer) record(persisted, duplicates, stale int) {
	metrics.ArticlesPersisted.Add(float64(persisted))
	metrics.DuplicatesSkipped.WithLabelValues(metrics.StageIngest).Add(float64(duplicates))
	metrics.StaleSkipped.Add(float64(stale))
}
