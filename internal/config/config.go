package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Seen-set backends selectable with SEEN_BACKEND.
const (
	SeenBackendMongo         = "mongo"
	SeenBackendElasticsearch = "elasticsearch"
)

// Kafka contains the broker parameters shared by the publisher and the worker.
type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" env-default:"kafka:9092" env-separator:","`
	Topic   string   `env:"KAFKA_TOPIC" env-default:"news"`
}

// Publisher holds configuration for the feed -> Kafka publisher.
type Publisher struct {
	Kafka
	FeedURL      string        `env:"FEED_URL" env-default:"https://feeds.bbci.co.uk/news/rss.xml"`
	FetchPeriod  time.Duration `env:"FEED_FETCH_PERIOD" env-default:"5m"`
	FeedCharset  string        `env:"FEED_CHARSET" env-default:"UTF-8"`
	FeedTimeout  time.Duration `env:"FEED_TIMEOUT" env-default:"30s"`
	WriteTimeout time.Duration `env:"PUBLISHER_WRITE_TIMEOUT" env-default:"10s"`
	BatchTimeout time.Duration `env:"PUBLISHER_BATCH_TIMEOUT" env-default:"50ms"`

	SeenBackend        string        `env:"SEEN_BACKEND" env-default:"mongo"`
	MongoURL           string        `env:"MONGO_URL" env-default:"mongodb://mongo:27017/news"`
	MongoCollection    string        `env:"MONGO_COLLECTION" env-default:"processedGuids"`
	ElasticsearchAddr  string        `env:"ELASTICSEARCH_ADDR" env-default:"http://elasticsearch:9200"`
	ElasticsearchIndex string        `env:"ELASTICSEARCH_INDEX" env-default:"processed-guids"`
	SeenCacheCapacity  int           `env:"SEEN_CACHE_CAPACITY" env-default:"20000"`
	SeenCacheTTL       time.Duration `env:"SEEN_CACHE_TTL" env-default:"24h"`

	MetricsAddr string `env:"METRICS_ADDR" env-default:":9100"`
}

// Worker holds configuration for the Kafka -> Redis worker pool.
type Worker struct {
	Kafka
	ConsumerGroup    string        `env:"KAFKA_CONSUMER_GROUP" env-default:"news-consumer"`
	Concurrency      int           `env:"WORKER_CONCURRENCY" env-default:"3"`
	BatchSize        int           `env:"WORKER_BATCH_SIZE" env-default:"50"`
	BatchWait        time.Duration `env:"WORKER_BATCH_WAIT" env-default:"1s"`
	RetryBackoff     time.Duration `env:"WORKER_RETRY_BACKOFF" env-default:"2s"`
	StoreTTL         time.Duration `env:"STORE_TTL" env-default:"24h"`
	StalenessHorizon time.Duration `env:"STALENESS_HORIZON" env-default:"72h"`
	RedisURL         string        `env:"REDIS_URL" env-default:"redis://redis:6379/0"`
	MetricsAddr      string        `env:"METRICS_ADDR" env-default:":9100"`
}

// API describes HTTP-layer configuration.
type API struct {
	RedisURL    string `env:"REDIS_URL" env-default:"redis://redis:6379/0"`
	BindAddr    string `env:"API_BIND_ADDR" env-default:"0.0.0.0:8080"`
	DefaultPage int    `env:"API_PAGE_SIZE" env-default:"10"`
	MaxPage     int    `env:"API_MAX_PAGE_SIZE" env-default:"100"`
}

// LoadPublisher builds a Publisher config from environment variables.
func LoadPublisher() (*Publisher, error) {
	c := &Publisher{}
	if err := cleanenv.ReadEnv(c); err != nil {
		return nil, fmt.Errorf("read publisher env: %w", err)
	}

	if err := c.Kafka.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.FeedURL) == "" {
		return nil, fmt.Errorf("FEED_URL is required")
	}
	if c.FetchPeriod <= 0 {
		return nil, fmt.Errorf("FEED_FETCH_PERIOD must be positive")
	}
	if c.FeedTimeout <= 0 {
		return nil, fmt.Errorf("FEED_TIMEOUT must be positive")
	}
	if c.WriteTimeout <= 0 {
		return nil, fmt.Errorf("PUBLISHER_WRITE_TIMEOUT must be positive")
	}
	if c.SeenCacheCapacity <= 0 {
		return nil, fmt.Errorf("SEEN_CACHE_CAPACITY must be positive")
	}

	c.SeenBackend = strings.ToLower(strings.TrimSpace(c.SeenBackend))
	switch c.SeenBackend {
	case SeenBackendMongo, SeenBackendElasticsearch:
	default:
		return nil, fmt.Errorf("SEEN_BACKEND must be %q or %q, got %q", SeenBackendMongo, SeenBackendElasticsearch, c.SeenBackend)
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{}
	if err := cleanenv.ReadEnv(c); err != nil {
		return nil, fmt.Errorf("read worker env: %w", err)
	}

	if err := c.Kafka.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.ConsumerGroup) == "" {
		return nil, fmt.Errorf("KAFKA_CONSUMER_GROUP is required")
	}
	if c.Concurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.BatchWait <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_WAIT must be positive")
	}
	if c.RetryBackoff < 0 {
		return nil, fmt.Errorf("WORKER_RETRY_BACKOFF cannot be negative")
	}
	if c.StoreTTL <= 0 {
		return nil, fmt.Errorf("STORE_TTL must be positive")
	}
	if c.StalenessHorizon <= 0 {
		return nil, fmt.Errorf("STALENESS_HORIZON must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{}
	if err := cleanenv.ReadEnv(c); err != nil {
		return nil, fmt.Errorf("read api env: %w", err)
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

func (k *Kafka) validate() error {
	k.Brokers = trimAll(k.Brokers)
	if len(k.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if strings.TrimSpace(k.Topic) == "" {
		return fmt.Errorf("KAFKA_TOPIC is required")
	}
	return nil
}

func trimAll(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
