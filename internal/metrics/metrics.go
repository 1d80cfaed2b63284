// Package metrics provides Prometheus metrics for the news pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsrelay"

// Stage labels for duplicate counters.
const (
	StagePublisher = "publisher"
	StageIngest    = "ingest"
)

var (
	// FetchCycles counts publisher fetch cycles by final status.
	FetchCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_cycles_total",
			Help:      "Total number of feed fetch cycles",
		},
		[]string{"status"},
	)

	// ArticlesPublished counts articles written to the message channel.
	ArticlesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_published_total",
			Help:      "Total number of articles published to Kafka",
		},
	)

	// DuplicatesSkipped counts duplicates dropped at each stage.
	DuplicatesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Total number of duplicate articles skipped",
		},
		[]string{"stage"},
	)

	// StaleSkipped counts articles dropped for being past the staleness horizon.
	StaleSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_skipped_total",
			Help:      "Total number of stale articles skipped",
		},
	)

	// ArticlesPersisted counts articles written to the store.
	ArticlesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_persisted_total",
			Help:      "Total number of articles written to Redis",
		},
	)

	// Batches counts consumed batches by result (acked or nacked).
	Batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of consumed batches",
		},
		[]string{"result"},
	)

	// BatchSize observes consumed batch sizes.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Distribution of consumed batch sizes",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// QueryDuration measures list/get query duration.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of store queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RecordCycle records a finished fetch cycle.
func RecordCycle(status string, published int) {
	FetchCycles.WithLabelValues(status).Inc()
	ArticlesPublished.Add(float64(published))
}

// RecordBatch records a consumed batch.
func RecordBatch(acked bool, size int) {
	result := "nacked"
	if acked {
		result = "acked"
	}
	Batches.WithLabelValues(result).Inc()
	BatchSize.Observe(float64(size))
}

// ObserveQuery records the duration of a query operation.
func ObserveQuery(operation string, started time.Time) {
	QueryDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve runs a metrics listener on addr until ctx is done. An empty addr
// disables the listener.
func Serve(ctx context.Context, addr string, log *slog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listener starting", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics listener stopped", slog.Any("err", err))
	}
}
