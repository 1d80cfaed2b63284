package dedupe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-relay/internal/dedupe"
)

func TestCacheSeenDuplicate(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.False(t, cache.IsSeen("alpha"))
	cache.MarkSeen("alpha")
	require.True(t, cache.IsSeen("alpha"))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := dedupe.NewCache(10, 20*time.Millisecond)
	require.False(t, cache.IsSeen("beta"))
	cache.MarkSeen("beta")
	time.Sleep(25 * time.Millisecond)
	require.False(t, cache.IsSeen("beta"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := dedupe.NewCache(1, time.Minute)
	require.False(t, cache.IsSeen("first"))
	cache.MarkSeen("first")

	require.False(t, cache.IsSeen("second"))
	cache.MarkSeen("second")

	require.False(t, cache.IsSeen("first"))
	require.True(t, cache.IsSeen("second"))
}

type stubBackend struct {
	seen   map[string]bool
	checks int
	err    error
}

func (s *stubBackend) Exists(_ context.Context, guid string) (bool, error) {
	s.checks++
	if s.err != nil {
		return false, s.err
	}
	return s.seen[guid], nil
}

func (s *stubBackend) MarkSeen(_ context.Context, guids []string) error {
	if s.err != nil {
		return s.err
	}
	for _, g := range guids {
		s.seen[g] = true
	}
	return nil
}

func TestCachedSetServesPositiveHitsFromMemory(t *testing.T) {
	backend := &stubBackend{seen: map[string]bool{"known": true}}
	set := dedupe.NewCachedSet(backend, dedupe.NewCache(10, time.Minute))
	ctx := context.Background()

	ok, err := set.Exists(ctx, "known")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = set.Exists(ctx, "known")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, backend.checks)

	ok, err = set.Exists(ctx, "fresh")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = set.Exists(ctx, "fresh")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 3, backend.checks)
}

func TestCachedSetMarkSeen(t *testing.T) {
	backend := &stubBackend{seen: map[string]bool{}}
	set := dedupe.NewCachedSet(backend, dedupe.NewCache(10, time.Minute))
	ctx := context.Background()

	require.NoError(t, set.MarkSeen(ctx, nil))
	require.NoError(t, set.MarkSeen(ctx, []string{"a", "b"}))
	require.True(t, backend.seen["a"])

	ok, err := set.Exists(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, backend.checks)
}

func TestCachedSetDoesNotCacheOnBackendFailure(t *testing.T) {
	backend := &stubBackend{seen: map[string]bool{}, err: errors.New("down")}
	cache := dedupe.NewCache(10, time.Minute)
	set := dedupe.NewCachedSet(backend, cache)

	require.Error(t, set.MarkSeen(context.Background(), []string{"a"}))
	require.False(t, cache.IsSeen("a"))

	_, err := set.Exists(context.Background(), "a")
	require.Error(t, err)
}
