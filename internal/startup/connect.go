// Package startup holds the connect-with-retry loop the binaries run before
// serving.
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backoff bounds the retry loop.
type Backoff struct {
	Attempts       int
	Initial        time.Duration
	Max            time.Duration
	AttemptTimeout time.Duration
}

// DefaultBackoff doubles from 2s up to 30s over ten attempts.
var DefaultBackoff = Backoff{
	Attempts:       10,
	Initial:        2 * time.Second,
	Max:            30 * time.Second,
	AttemptTimeout: 5 * time.Second,
}

// Connect calls open until it succeeds, the attempts are exhausted or ctx is
// done. open is expected to verify connectivity, not only build a client.
func Connect[T any](ctx context.Context, log *slog.Logger, name string, b Backoff, open func(context.Context) (T, error)) (T, error) {
	var zero T
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	if b.AttemptTimeout <= 0 {
		b.AttemptTimeout = DefaultBackoff.AttemptTimeout
	}

	delay := b.Initial
	var lastErr error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, b.AttemptTimeout)
		v, err := open(attemptCtx)
		cancel()
		if err == nil {
			log.Info("connected", slog.String("backend", name), slog.Int("attempt", attempt))
			return v, nil
		}
		lastErr = err

		if attempt == b.Attempts {
			break
		}
		log.Warn("connect failed, retrying",
			slog.String("backend", name),
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", b.Attempts),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}

	return zero, fmt.Errorf("connect %s after %d attempts: %w", name, b.Attempts, lastErr)
}
