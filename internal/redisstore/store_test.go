package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-relay/internal/redisstore"
)

func newStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := redisstore.New(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestSetGetExistsWithExpiry(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "article:1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "article:1", []byte(`{"guid":"1"}`), 24*time.Hour))
	require.Equal(t, 24*time.Hour, mr.TTL("article:1"))

	ok, err = store.Exists(ctx, "article:1")
	require.NoError(t, err)
	require.True(t, ok)

	value, ok, err := store.Get(ctx, "article:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"guid":"1"}`, string(value))

	mr.FastForward(25 * time.Hour)

	_, ok, err = store.Get(ctx, "article:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeysByPrefix(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for _, k := range []string{"article:1", "article:2", "article:3", "session:9"} {
		require.NoError(t, store.Set(ctx, k, []byte("x"), time.Hour))
	}

	keys, err := store.Keys(ctx, "article:")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"article:1", "article:2", "article:3"}, keys)

	keys, err = store.Keys(ctx, "missing:")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestGetManyAlignsMissingKeys(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "article:1", []byte("one"), time.Hour))
	require.NoError(t, store.Set(ctx, "article:2", []byte("two"), time.Minute))
	mr.FastForward(2 * time.Minute)

	values, err := store.GetMany(ctx, []string{"article:1", "article:2", "article:3"})
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("one"), nil, nil}, values)

	values, err = store.GetMany(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = redisstore.New(ctx, "redis://"+addr+"/0")
	require.Error(t, err)
}

func TestNewWithClient(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, store.Ping(context.Background()))
}
