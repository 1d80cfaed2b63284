package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/news-relay/internal/logger"
	"github.com/DeafMist/news-relay/internal/metrics"
)

const settleTimeout = 30 * time.Second

// BatchReader is satisfied by *kafka.Reader configured with a consumer group
// and manual commits.
type BatchReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory opens a fresh group member. Opening a new reader resumes
// from the last committed offsets of its assigned partitions.
type ReaderFactory func() BatchReader

// RunnerConfig controls batching and redelivery.
type RunnerConfig struct {
	BatchSize    int
	BatchWait    time.Duration
	RetryBackoff time.Duration
}

// Runner pulls batches for one consumer-group member and acknowledges them
// only when the consumer accepts every message.
type Runner struct {
	id        int
	newReader ReaderFactory
	consumer  *Consumer
	cfg       RunnerConfig
	log       *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(id int, newReader ReaderFactory, consumer *Consumer, cfg RunnerConfig, log *slog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = time.Second
	}
	return &Runner{
		id:        id,
		newReader: newReader,
		consumer:  consumer,
		cfg:       cfg,
		log:       logger.OrDiscard(log).With(slog.Int("runner", id)),
	}
}

// Run consumes until ctx is done. A batch already held when ctx is canceled
// is still processed and, if accepted, committed.
func (r *Runner) Run(ctx context.Context) error {
	reader := r.newReader()
	defer func() {
		if reader == nil {
			return
		}
		if err := reader.Close(); err != nil {
			r.log.Warn("close reader", slog.Any("err", err))
		}
	}()

	r.log.Info("runner started")
	for {
		batch, err := r.fetchBatch(ctx, reader)
		if len(batch) == 0 {
			if ctx.Err() != nil {
				r.log.Info("context canceled, stopping")
				return nil
			}
			if err != nil {
				r.log.Error("fetch message", slog.Any("err", err))
				if !sleep(ctx, r.cfg.RetryBackoff) {
					return nil
				}
			}
			continue
		}

		settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		acked := r.consumer.ConsumeBatch(settleCtx, batch)
		metrics.RecordBatch(acked, len(batch))

		if acked {
			if err := reader.CommitMessages(settleCtx, batch...); err != nil {
				r.log.Error("commit batch", slog.Any("err", err), slog.Int("batch_size", len(batch)))
			}
			cancel()
			continue
		}
		cancel()

		// Rejoining the group rewinds to the last committed offset, so the
		// whole batch is delivered again.
		if err := reader.Close(); err != nil {
			r.log.Warn("close reader before redelivery", slog.Any("err", err))
		}
		reader = nil
		r.log.Warn("batch not acknowledged, reopening reader",
			slog.Int("batch_size", len(batch)),
			slog.Duration("backoff", r.cfg.RetryBackoff),
		)
		if !sleep(ctx, r.cfg.RetryBackoff) {
			return nil
		}
		reader = r.newReader()
	}
}

// fetchBatch blocks for the first message, then collects up to BatchSize
// messages for at most BatchWait. Cancellation mid-collection ends the
// batch early; what was already fetched is returned so it still settles.
func (r *Runner) fetchBatch(ctx context.Context, reader BatchReader) ([]kafka.Message, error) {
	first, err := reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := make([]kafka.Message, 0, r.cfg.BatchSize)
	batch = append(batch, first)

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.BatchWait)
	defer cancel()

	for len(batch) < r.cfg.BatchSize {
		msg, err := reader.FetchMessage(waitCtx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
				r.log.Warn("fetch message mid-batch", slog.Any("err", err))
			}
			break
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Pool runs a fixed number of runners in the same consumer group; the broker
// assigns each member a disjoint set of partitions.
type Pool struct {
	runners []*Runner
}

// NewPool creates size runners sharing one consumer.
func NewPool(size int, newReader ReaderFactory, consumer *Consumer, cfg RunnerConfig, log *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{runners: make([]*Runner, 0, size)}
	for i := 0; i < size; i++ {
		p.runners = append(p.runners, NewRunner(i, newReader, consumer, cfg, log))
	}
	return p
}

// Size returns the number of runners.
func (p *Pool) Size() int {
	return len(p.runners)
}

// Run blocks until every runner has stopped.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range p.runners {
		r := r
		g.Go(func() error {
			return r.Run(gctx)
		})
	}
	return g.Wait()
}
