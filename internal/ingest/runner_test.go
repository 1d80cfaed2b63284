package ingest_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-relay/internal/ingest"
)

// fakeBroker is a single partition with a committed offset. Every reader
// opened on it starts from the committed offset, like a group rejoin.
type fakeBroker struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed int64
	opened    int
	fetched   int
	commits   []int
}

func (b *fakeBroker) open() ingest.BatchReader {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	return &fakeReader{b: b, pos: b.committed}
}

func (b *fakeBroker) fetchedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetched
}

func (b *fakeBroker) committedOffset() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed
}

type fakeReader struct {
	b   *fakeBroker
	pos int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.b.mu.Lock()
	if int(r.pos) < len(r.b.msgs) {
		m := r.b.msgs[r.pos]
		r.pos++
		r.b.fetched++
		r.b.mu.Unlock()
		return m, nil
	}
	r.b.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	r.b.commits = append(r.b.commits, len(msgs))
	for _, m := range msgs {
		if m.Offset+1 > r.b.committed {
			r.b.committed = m.Offset + 1
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

var runnerCfg = ingest.RunnerConfig{
	BatchSize:    10,
	BatchWait:    50 * time.Millisecond,
	RetryBackoff: 10 * time.Millisecond,
}

func runUntil(t *testing.T, run func(ctx context.Context) error, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerRedeliversUnacknowledgedBatch(t *testing.T) {
	mr, base := newStore(t)
	store := &flakyStore{Store: base, failKey: "article:a2"}
	broker := &fakeBroker{msgs: []kafka.Message{
		message(t, article("a1", time.Hour), 0),
		message(t, article("a2", time.Hour), 1),
		message(t, article("a3", time.Hour), 2),
	}}

	r := ingest.NewRunner(0, broker.open, newConsumer(store), runnerCfg, nil)
	runUntil(t, r.Run, func() bool { return broker.committedOffset() == 3 })

	require.Equal(t, 2, broker.opened)
	require.Equal(t, []int{3}, broker.commits)
	require.ElementsMatch(t, []string{"article:a1", "article:a2", "article:a3"}, mr.Keys())
}

func TestRunnerCommitsEachBatch(t *testing.T) {
	_, store := newStore(t)
	broker := &fakeBroker{msgs: []kafka.Message{
		message(t, article("a1", time.Hour), 0),
		message(t, article("a2", time.Hour), 1),
		message(t, article("a3", time.Hour), 2),
	}}

	cfg := runnerCfg
	cfg.BatchSize = 2
	r := ingest.NewRunner(0, broker.open, newConsumer(store), cfg, nil)
	runUntil(t, r.Run, func() bool { return broker.committedOffset() == 3 })

	require.Equal(t, 1, broker.opened)
	require.Equal(t, []int{2, 1}, broker.commits)
}

func TestRunnerSettlesPartialBatchOnShutdown(t *testing.T) {
	mr, store := newStore(t)
	broker := &fakeBroker{msgs: []kafka.Message{
		message(t, article("a1", time.Hour), 0),
		message(t, article("a2", time.Hour), 1),
	}}

	cfg := runnerCfg
	cfg.BatchWait = time.Hour
	r := ingest.NewRunner(0, broker.open, newConsumer(store), cfg, nil)
	runUntil(t, r.Run, func() bool { return broker.fetchedCount() == 2 })

	require.Equal(t, int64(2), broker.committedOffset())
	require.Equal(t, []int{2}, broker.commits)
	require.ElementsMatch(t, []string{"article:a1", "article:a2"}, mr.Keys())
}

func TestPoolRunsEveryRunner(t *testing.T) {
	mr, store := newStore(t)
	brokers := []*fakeBroker{
		{msgs: []kafka.Message{message(t, article("p0-a", time.Hour), 0), message(t, article("p0-b", time.Hour), 1)}},
		{msgs: []kafka.Message{message(t, article("p1-a", time.Hour), 0)}},
	}
	var next atomic.Int32
	factory := func() ingest.BatchReader {
		return brokers[int(next.Add(1)-1)%len(brokers)].open()
	}

	pool := ingest.NewPool(2, factory, newConsumer(store), runnerCfg, nil)
	require.Equal(t, 2, pool.Size())

	runUntil(t, pool.Run, func() bool {
		return brokers[0].committedOffset() == 2 && brokers[1].committedOffset() == 1
	})
	require.Len(t, mr.Keys(), 3)
}
