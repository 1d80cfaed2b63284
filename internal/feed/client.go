package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"
)

// ErrUnexpectedStatus is returned when the feed endpoint answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected feed status")

const maxFeedBytes = 16 << 20

var prologEncoding = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding\s*=\s*["'])[^"']*(["'])`)

// Client downloads and parses a single feed.
type Client struct {
	http           *http.Client
	url            string
	defaultCharset string
}

// NewClient creates a feed client. defaultCharset is used when the response
// does not declare one.
func NewClient(httpClient *http.Client, url, defaultCharset string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(defaultCharset) == "" {
		defaultCharset = "UTF-8"
	}
	return &Client{
		http:           httpClient,
		url:            url,
		defaultCharset: defaultCharset,
	}
}

// URL returns the polled feed address.
func (c *Client) URL() string {
	return c.url
}

// Fetch downloads the feed and parses it into items.
func (c *Client) Fetch(ctx context.Context) ([]*gofeed.Item, error) {
	body, err := c.FetchBytes(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(body)
}

// FetchBytes downloads the feed and returns its bytes transcoded to UTF-8.
func (c *Client) FetchBytes(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, res.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	label := ResponseCharset(res.Header.Get("Content-Type"))
	if label == "" {
		label = c.defaultCharset
	}
	return ToUTF8(raw, label)
}

// ResponseCharset extracts the charset parameter of a Content-Type header.
func ResponseCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

// ToUTF8 decodes raw using the named charset. When a transcode happens the
// XML prolog encoding is rewritten to UTF-8 so the parser does not decode twice.
func ToUTF8(raw []byte, label string) ([]byte, error) {
	if isUTF8(label) {
		return raw, nil
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode feed charset %q: %w", label, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode feed charset %q: %w", label, err)
	}
	return prologEncoding.ReplaceAll(decoded, []byte("${1}UTF-8${2}")), nil
}

// Parse parses RSS, Atom or JSON feed bytes.
func Parse(data []byte) ([]*gofeed.Item, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return parsed.Items, nil
}

func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8":
		return true
	}
	return false
}
