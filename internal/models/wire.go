package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedMessage is returned when a payload cannot be mapped to an Article.
	ErrMalformedMessage = errors.New("malformed article payload")
	// ErrMissingGUID is returned when a payload has no guid.
	ErrMissingGUID = errors.New("article payload has no guid")
)

// WireArticle is the JSON shape exchanged over the message channel, stored
// in the time-bounded store and returned by the read path.
type WireArticle struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title,omitempty"`
	Link        string     `json:"link,omitempty"`
	Description string     `json:"description,omitempty"`
	Creator     string     `json:"creator,omitempty"`
	PubDate     string     `json:"pubDate,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	Media       *WireMedia `json:"media,omitempty"`
}

// WireMedia is the JSON shape of Media.
type WireMedia struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// inboundArticle accepts pubDate either as a date string or as epoch
// milliseconds, which older producers emitted.
type inboundArticle struct {
	WireArticle
	PubDate json.RawMessage `json:"pubDate"`
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ToWire maps an Article onto its wire representation.
func ToWire(a Article) WireArticle {
	w := WireArticle{
		GUID:        a.ID,
		Title:       a.Title,
		Link:        a.Link,
		Description: a.Content,
		Creator:     a.Creator,
		PubDate:     FormatPubDate(a.PublishedAt),
	}
	if len(a.Categories) > 0 {
		w.Categories = append([]string(nil), a.Categories...)
	}
	if a.Media != nil {
		w.Media = &WireMedia{URL: a.Media.URL, Width: a.Media.Width, Height: a.Media.Height}
	}
	return w
}

// FromWire maps a wire representation back to an Article.
func FromWire(w WireArticle) (Article, error) {
	if strings.TrimSpace(w.GUID) == "" {
		return Article{}, ErrMissingGUID
	}

	a := Article{
		ID:      w.GUID,
		Title:   w.Title,
		Link:    w.Link,
		Content: w.Description,
		Creator: w.Creator,
	}

	if w.PubDate != "" {
		ts, ok := ParsePubDate(w.PubDate)
		if !ok {
			return Article{}, fmt.Errorf("%w: unparseable pubDate %q", ErrMalformedMessage, w.PubDate)
		}
		a.PublishedAt = ts
	}
	if len(w.Categories) > 0 {
		a.Categories = append([]string(nil), w.Categories...)
	}
	if w.Media != nil {
		a.Media = &Media{URL: w.Media.URL, Width: w.Media.Width, Height: w.Media.Height}
	}
	return a, nil
}

// EncodeArticle serializes an Article into the wire format.
func EncodeArticle(a Article) ([]byte, error) {
	if strings.TrimSpace(a.ID) == "" {
		return nil, ErrMissingGUID
	}
	payload, err := json.Marshal(ToWire(a))
	if err != nil {
		return nil, fmt.Errorf("marshal article: %w", err)
	}
	return payload, nil
}

// DecodeArticle parses a wire payload into an Article.
func DecodeArticle(data []byte) (Article, error) {
	var in inboundArticle
	if err := json.Unmarshal(data, &in); err != nil {
		return Article{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	raw := bytes.TrimSpace(in.PubDate)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		in.WireArticle.PubDate = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Article{}, fmt.Errorf("%w: pubDate: %v", ErrMalformedMessage, err)
		}
		in.WireArticle.PubDate = s
	default:
		var millis int64
		if err := json.Unmarshal(raw, &millis); err != nil {
			return Article{}, fmt.Errorf("%w: pubDate: %v", ErrMalformedMessage, err)
		}
		in.WireArticle.PubDate = FormatPubDate(time.UnixMilli(millis))
	}

	return FromWire(in.WireArticle)
}

// FormatPubDate renders t as an RFC 1123 date with numeric zone, in UTC.
// The zero time renders as the empty string.
func FormatPubDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC1123Z)
}

// zoneOffsets resolves the zone abbreviations feeds commonly emit. time.Parse
// keeps the wall clock of an abbreviation it does not know and gives it a
// zero offset.
var zoneOffsets = map[string]int{
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
	"AKST": -9 * 3600, "AKDT": -8 * 3600,
	"HST": -10 * 3600,
	"BST": 1 * 3600,
	"CET": 1 * 3600, "CEST": 2 * 3600,
	"EET": 2 * 3600, "EEST": 3 * 3600,
	"WEST": 1 * 3600, "MSK": 3 * 3600,
	"JST": 9 * 3600, "AEST": 10 * 3600, "AEDT": 11 * 3600,
}

// ParsePubDate parses the RFC 822 family of dates feeds use, plus RFC 3339.
// A zone abbreviation without a known offset makes the date unparseable.
func ParsePubDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	// RFC 822 allows "UT" and "Z", which time.Parse does not take as zones.
	if rest, ok := strings.CutSuffix(raw, " UT"); ok {
		raw = rest + " UTC"
	} else if rest, ok := strings.CutSuffix(raw, " Z"); ok {
		raw = rest + " UTC"
	}

	for _, layout := range pubDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return resolveZone(ts)
		}
	}
	return time.Time{}, false
}

func resolveZone(ts time.Time) (time.Time, bool) {
	name, offset := ts.Zone()
	if offset != 0 {
		return ts.UTC(), true
	}
	switch name {
	case "", "UTC", "GMT", "WET":
		return ts.UTC(), true
	}

	known, ok := zoneOffsets[name]
	if !ok {
		return time.Time{}, false
	}
	return ts.Add(-time.Duration(known) * time.Second).UTC(), true
}
