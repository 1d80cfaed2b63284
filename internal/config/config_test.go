package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-relay/internal/config"
)

func TestLoadPublisherDefaults(t *testing.T) {
	cfg, err := config.LoadPublisher()
	require.NoError(t, err)

	require.Equal(t, []string{"kafka:9092"}, cfg.Brokers)
	require.Equal(t, "news", cfg.Topic)
	require.Equal(t, "https://feeds.bbci.co.uk/news/rss.xml", cfg.FeedURL)
	require.Equal(t, 5*time.Minute, cfg.FetchPeriod)
	require.Equal(t, "UTF-8", cfg.FeedCharset)
	require.Equal(t, config.SeenBackendMongo, cfg.SeenBackend)
	require.Equal(t, "mongodb://mongo:27017/news", cfg.MongoURL)
	require.Equal(t, "processedGuids", cfg.MongoCollection)
	require.Equal(t, 20000, cfg.SeenCacheCapacity)
	require.Equal(t, 24*time.Hour, cfg.SeenCacheTTL)
	require.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestLoadPublisherOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-a:29092, broker-b:29093")
	t.Setenv("KAFKA_TOPIC", "custom_topic")
	t.Setenv("FEED_URL", "http://feeds.local/rss")
	t.Setenv("FEED_FETCH_PERIOD", "30s")
	t.Setenv("FEED_CHARSET", "windows-1251")
	t.Setenv("SEEN_BACKEND", "Elasticsearch")
	t.Setenv("ELASTICSEARCH_ADDR", "http://localhost:9999")
	t.Setenv("ELASTICSEARCH_INDEX", "custom")

	cfg, err := config.LoadPublisher()
	require.NoError(t, err)

	require.Equal(t, []string{"broker-a:29092", "broker-b:29093"}, cfg.Brokers)
	require.Equal(t, "custom_topic", cfg.Topic)
	require.Equal(t, "http://feeds.local/rss", cfg.FeedURL)
	require.Equal(t, 30*time.Second, cfg.FetchPeriod)
	require.Equal(t, "windows-1251", cfg.FeedCharset)
	require.Equal(t, config.SeenBackendElasticsearch, cfg.SeenBackend)
	require.Equal(t, "http://localhost:9999", cfg.ElasticsearchAddr)
	require.Equal(t, "custom", cfg.ElasticsearchIndex)
}

func TestLoadPublisherRejectsUnknownBackend(t *testing.T) {
	t.Setenv("SEEN_BACKEND", "cassandra")

	_, err := config.LoadPublisher()
	require.Error(t, err)
}

func TestLoadWorkerDefaults(t *testing.T) {
	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, []string{"kafka:9092"}, cfg.Brokers)
	require.Equal(t, "news", cfg.Topic)
	require.Equal(t, "news-consumer", cfg.ConsumerGroup)
	require.Equal(t, 3, cfg.Concurrency)
	require.Equal(t, 50, cfg.BatchSize)
	require.Equal(t, time.Second, cfg.BatchWait)
	require.Equal(t, 2*time.Second, cfg.RetryBackoff)
	require.Equal(t, 24*time.Hour, cfg.StoreTTL)
	require.Equal(t, 72*time.Hour, cfg.StalenessHorizon)
	require.Equal(t, "redis://redis:6379/0", cfg.RedisURL)
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("KAFKA_CONSUMER_GROUP", "custom-group")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("WORKER_BATCH_SIZE", "3")
	t.Setenv("STORE_TTL", "48h")
	t.Setenv("STALENESS_HORIZON", "12h")
	t.Setenv("REDIS_URL", "redis://localhost:6380/2")

	cfg, err := config.LoadWorker()
	require.NoError(t, err)

	require.Equal(t, "custom-group", cfg.ConsumerGroup)
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, 3, cfg.BatchSize)
	require.Equal(t, 48*time.Hour, cfg.StoreTTL)
	require.Equal(t, 12*time.Hour, cfg.StalenessHorizon)
	require.Equal(t, "redis://localhost:6380/2", cfg.RedisURL)
}

func TestLoadWorkerValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero concurrency", key: "WORKER_CONCURRENCY", val: "0"},
		{name: "negative batch", key: "WORKER_BATCH_SIZE", val: "-1"},
		{name: "zero ttl", key: "STORE_TTL", val: "0s"},
		{name: "bad duration", key: "STALENESS_HORIZON", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.LoadWorker()
			require.Error(t, err)
		})
	}
}

func TestLoadAPI(t *testing.T) {
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("API_PAGE_SIZE", "15")
	t.Setenv("API_MAX_PAGE_SIZE", "200")
	t.Setenv("REDIS_URL", "redis://api-redis:6379/1")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, 15, cfg.DefaultPage)
	require.Equal(t, 200, cfg.MaxPage)
	require.Equal(t, "redis://api-redis:6379/1", cfg.RedisURL)
}

func TestLoadAPIPageSizeBounds(t *testing.T) {
	t.Setenv("API_PAGE_SIZE", "50")
	t.Setenv("API_MAX_PAGE_SIZE", "10")

	_, err := config.LoadAPI()
	require.Error(t, err)
}
