// Package publisher polls the feed and forwards unseen articles to Kafka.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-relay/internal/feed"
	"github.com/DeafMist/news-relay/internal/logger"
	"github.com/DeafMist/news-relay/internal/metrics"
	"github.com/DeafMist/news-relay/internal/models"
)

// CycleIDHeader is the Kafka header carrying the fetch cycle correlation id.
const CycleIDHeader = "cycle_id"

const recordTimeout = 10 * time.Second

// Cycle statuses reported in Stats and metrics.
const (
	StatusOK            = "ok"
	StatusFetchFailed   = "fetch_failed"
	StatusSeenFailed    = "seen_lookup_failed"
	StatusPublishFailed = "publish_failed"
	StatusRecordFailed  = "record_failed"
	StatusCanceled      = "canceled"
)

// SeenSet is the durable set of identifiers that were already published.
type SeenSet interface {
	Exists(ctx context.Context, guid string) (bool, error)
	MarkSeen(ctx context.Context, guids []string) error
}

// FeedSource downloads and parses the feed.
type FeedSource interface {
	Fetch(ctx context.Context) ([]*gofeed.Item, error)
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type entryOutcome int

const (
	entryPublished entryOutcome = iota
	entryDuplicate
	entryNoURI
)

// Stats summarizes a single fetch cycle.
type Stats struct {
	CycleID    string
	Status     string
	Fetched    int
	Published  int
	Duplicates int
	NoURI      int
}

// Publisher runs fetch cycles. At most one cycle runs at a time.
type Publisher struct {
	feed    FeedSource
	seen    SeenSet
	writer  MessageWriter
	log     *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

// New wires a Publisher.
func New(source FeedSource, seen SeenSet, writer MessageWriter, log *slog.Logger) *Publisher {
	return &Publisher{
		feed:   source,
		seen:   seen,
		writer: writer,
		log:    logger.OrDiscard(log),
		now:    time.Now,
	}
}

// Run invokes RunFetchCycle immediately and then on every tick until ctx is done.
func (p *Publisher) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	p.RunFetchCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("publisher stopped")
			return
		case <-ticker.C:
			p.RunFetchCycle(ctx)
		}
	}
}

// RunFetchCycle performs one cycle and logs its outcome. It returns
// immediately when another cycle is still in flight.
func (p *Publisher) RunFetchCycle(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Warn("previous fetch cycle still running, skipping tick")
		return
	}
	defer p.running.Store(false)

	started := p.now()
	stats, err := p.Cycle(ctx)
	metrics.RecordCycle(stats.Status, stats.Published)

	attrs := []any{
		slog.String("cycle_id", stats.CycleID),
		slog.String("status", stats.Status),
		slog.Int("fetched", stats.Fetched),
		slog.Int("published", stats.Published),
		slog.Int("duplicates", stats.Duplicates),
		slog.Duration("took", p.now().Sub(started)),
	}
	if err != nil {
		p.log.Error("fetch cycle aborted", append(attrs, slog.Any("err", err))...)
		return
	}
	p.log.Info("fetch cycle finished", attrs...)
}

// Cycle fetches the feed and publishes every entry that is neither in the
// durable seen-set nor repeated within this cycle. Published identifiers are
// recorded in the seen-set once the loop ends, including when it is cut
// short by an error.
func (p *Publisher) Cycle(ctx context.Context) (Stats, error) {
	stats := Stats{CycleID: uuid.NewString(), Status: StatusOK}

	items, err := p.feed.Fetch(ctx)
	if err != nil {
		stats.Status = StatusFetchFailed
		return stats, fmt.Errorf("fetch feed: %w", err)
	}
	stats.Fetched = len(items)

	inCycle := make(map[string]struct{}, len(items))
	published := make([]string, 0, len(items))

	var loopErr error
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			stats.Status = StatusCanceled
			loopErr = err
			break
		}

		outcome, guid, err := p.handleEntry(ctx, item, inCycle, stats.CycleID)
		if err != nil {
			stats.Status = statusFor(err)
			loopErr = err
			break
		}

		switch outcome {
		case entryPublished:
			inCycle[guid] = struct{}{}
			published = append(published, guid)
			stats.Published++
		case entryDuplicate:
			stats.Duplicates++
			metrics.DuplicatesSkipped.WithLabelValues(metrics.StagePublisher).Inc()
			p.log.Debug("skipping already processed item", slog.String("guid", guid))
		case entryNoURI:
			stats.NoURI++
			p.log.Warn("skipping feed item without guid or link", slog.Int("position", i))
		}
	}

	if err := p.record(ctx, published); err != nil {
		if loopErr == nil {
			stats.Status = StatusRecordFailed
			return stats, err
		}
		p.log.Error("record published guids", slog.Any("err", err))
	}
	return stats, loopErr
}

var (
	errSeenLookup = errors.New("seen-set lookup")
	errPublish    = errors.New("publish")
)

func statusFor(err error) string {
	switch {
	case errors.Is(err, errSeenLookup):
		return StatusSeenFailed
	case errors.Is(err, errPublish):
		return StatusPublishFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusPublishFailed
	}
}

func (p *Publisher) handleEntry(ctx context.Context, item *gofeed.Item, inCycle map[string]struct{}, cycleID string) (entryOutcome, string, error) {
	article, ok := feed.Normalize(item)
	if !ok {
		return entryNoURI, "", nil
	}

	if _, dup := inCycle[article.ID]; dup {
		return entryDuplicate, article.ID, nil
	}
	seen, err := p.seen.Exists(ctx, article.ID)
	if err != nil {
		return 0, article.ID, fmt.Errorf("%w %s: %w", errSeenLookup, article.ID, err)
	}
	if seen {
		return entryDuplicate, article.ID, nil
	}

	payload, err := models.EncodeArticle(article)
	if err != nil {
		return 0, article.ID, fmt.Errorf("%w %s: %w", errPublish, article.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(article.ID),
		Value: payload,
		Time:  p.now().UTC(),
		Headers: []kafka.Header{
			{Key: CycleIDHeader, Value: []byte(cycleID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return 0, article.ID, fmt.Errorf("%w %s: %w", errPublish, article.ID, err)
	}

	p.log.Debug("published article", slog.String("guid", article.ID), slog.String("title", article.Title))
	return entryPublished, article.ID, nil
}

// record survives cancellation of ctx so a stopping process still persists
// what it already published.
func (p *Publisher) record(ctx context.Context, guids []string) error {
	if len(guids) == 0 {
		return nil
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := p.seen.MarkSeen(recordCtx, guids); err != nil {
		return fmt.Errorf("record %d published guids: %w", len(guids), err)
	}
	return nil
}
