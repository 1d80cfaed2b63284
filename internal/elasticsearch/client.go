package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/DeafMist/news-relay/internal/logger"
)

// Client wraps go-elasticsearch as a durable set of published identifiers:
// one document per guid, the guid being the document id.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

type seenDoc struct {
	GUID   string    `json:"guid"`
	SeenAt time.Time `json:"seen_at"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Client{es: es, index: index, log: logger.OrDiscard(log)}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Exists reports whether guid was already recorded.
func (c *Client) Exists(ctx context.Context, guid string) (bool, error) {
	res, err := c.es.Exists(c.index, guid, c.es.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", guid, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("exists %s failed: %s", guid, res.Status())
	}
}

// MarkSeen records guids with a single bulk request. Create conflicts mean
// the guid is already recorded and are not errors.
func (c *Client) MarkSeen(ctx context.Context, guids []string) error {
	if len(guids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, g := range guids {
		action := map[string]any{"create": map[string]any{"_index": c.index, "_id": g}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("marshal bulk action: %w", err)
		}
		if err := enc.Encode(seenDoc{GUID: g, SeenAt: now}); err != nil {
			return fmt.Errorf("marshal bulk doc: %w", err)
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(c.index),
	)
	if err != nil {
		return fmt.Errorf("bulk mark seen: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk mark seen failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status < 300 || result.Status == http.StatusConflict {
				continue
			}
			failed++
			if first == "" && result.Error != nil {
				first = result.ID + ": " + result.Error.Type + ": " + result.Error.Reason
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("bulk mark seen: %d of %d items failed (%s)", failed, len(guids), first)
	}

	c.log.Debug("bulk mark seen found already recorded guids", slog.Int("count", len(guids)))
	return nil
}
