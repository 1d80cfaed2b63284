package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/DeafMist/news-relay/internal/mongo"
)

const testTimeout = 10 * time.Second

// TestMain starts MongoDB in a container once per package when
// GO_TEST_INTEGRATION is set; otherwise the integration tests skip.
func TestMain(m *testing.M) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7.0",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(90 * time.Second),
	}

	mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start mongo testcontainer: %v\n", err)
		os.Exit(1)
	}

	host, err := mongoC.Host(ctx)
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := mongoC.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = mongoC.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get mapped port: %v\n", err)
		os.Exit(1)
	}

	_ = os.Setenv("MONGO_TEST_URL", fmt.Sprintf("mongodb://%s:%s", host, port.Port()))

	code := m.Run()

	_ = mongoC.Terminate(context.Background())
	os.Exit(code)
}

func newTestSet(t *testing.T) *mongo.SeenSet {
	t.Helper()

	base := os.Getenv("MONGO_TEST_URL")
	if base == "" {
		t.Skip("set GO_TEST_INTEGRATION=1 to run MongoDB integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	db := "seen_" + uuid.NewString()[:8]
	set, err := mongo.New(ctx, base+"/"+db, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = set.Close(context.Background()) })
	return set
}

func TestSeenSetMarkAndExists(t *testing.T) {
	set := newTestSet(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	ok, err := set.Exists(ctx, "guid-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, set.MarkSeen(ctx, []string{"guid-1", "guid-2"}))

	ok, err = set.Exists(ctx, "guid-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Re-recording is harmless.
	require.NoError(t, set.MarkSeen(ctx, []string{"guid-2", "guid-3"}))
	ok, err = set.Exists(ctx, "guid-3")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, set.MarkSeen(ctx, nil))
}
