// Package query serves sorted, paginated reads over the stored articles.
package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/DeafMist/news-relay/internal/logger"
	"github.com/DeafMist/news-relay/internal/metrics"
	"github.com/DeafMist/news-relay/internal/models"
)

var (
	// ErrStoreUnavailable wraps any failure to reach the store.
	ErrStoreUnavailable = errors.New("article store unavailable")
	// ErrInvalidPage is returned for a negative page index or non-positive size.
	ErrInvalidPage = errors.New("invalid page request")
	// ErrNotFound is returned by Get when the article is absent or expired.
	ErrNotFound = errors.New("article not found")
)

// SortField names an Article field the list can be ordered by.
type SortField string

const (
	FieldPublishedAt SortField = "publishedAt"
	FieldTitle       SortField = "title"
	FieldCreator     SortField = "creator"
)

// Store is the read side of the time-bounded store.
type Store interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
}

// Params describes one page request. A zero Field means publishedAt
// descending regardless of Desc.
type Params struct {
	Field SortField
	Desc  bool
	Page  int
	Size  int
}

// Page is one slice of the sorted collection plus the collection size.
type Page struct {
	Items []models.Article
	Total int
}

// Service assembles pages from a point-in-time snapshot of the store.
type Service struct {
	store Store
	log   *slog.Logger
}

// New creates a Service.
func New(store Store, log *slog.Logger) *Service {
	return &Service{store: store, log: logger.OrDiscard(log)}
}

// List returns page p.Page of size p.Size of every stored article, sorted by
// p.Field. Keys that expire between enumeration and read are left out of
// both the page and the total.
func (s *Service) List(ctx context.Context, p Params) (Page, error) {
	defer metrics.ObserveQuery("list", time.Now())

	if p.Page < 0 || p.Size <= 0 {
		return Page{}, fmt.Errorf("%w: page=%d size=%d", ErrInvalidPage, p.Page, p.Size)
	}
	if p.Field == "" {
		p.Field, p.Desc = FieldPublishedAt, true
	}

	articles, err := s.snapshot(ctx)
	if err != nil {
		return Page{}, err
	}

	sortArticles(articles, p.Field, p.Desc)

	total := len(articles)
	// Compared by division so huge page indexes cannot overflow the offset.
	if total == 0 || p.Page > (total-1)/p.Size {
		return Page{Items: []models.Article{}, Total: total}, nil
	}
	start := p.Page * p.Size
	end := start + min(p.Size, total-start)
	return Page{Items: articles[start:end], Total: total}, nil
}

// Get returns the article stored under id.
func (s *Service) Get(ctx context.Context, id string) (models.Article, error) {
	defer metrics.ObserveQuery("get", time.Now())

	raw, ok, err := s.store.Get(ctx, models.StorageKey(id))
	if err != nil {
		return models.Article{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !ok {
		return models.Article{}, ErrNotFound
	}

	a, err := models.DecodeArticle(raw)
	if err != nil {
		return models.Article{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return a, nil
}

func (s *Service) snapshot(ctx context.Context) ([]models.Article, error) {
	keys, err := s.store.Keys(ctx, models.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	values, err := s.store.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	articles := make([]models.Article, 0, len(values))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		a, err := models.DecodeArticle(raw)
		if err != nil {
			s.log.Warn("skipping undecodable article", slog.String("key", keys[i]), slog.Any("err", err))
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func sortArticles(articles []models.Article, field SortField, desc bool) {
	var compare func(a, b models.Article) int
	switch field {
	case FieldTitle:
		compare = func(a, b models.Article) int { return strings.Compare(a.Title, b.Title) }
	case FieldCreator:
		compare = func(a, b models.Article) int { return strings.Compare(a.Creator, b.Creator) }
	default:
		compare = func(a, b models.Article) int { return a.PublishedAt.Compare(b.PublishedAt) }
	}

	slices.SortStableFunc(articles, func(a, b models.Article) int {
		if desc {
			return cmp.Compare(0, compare(a, b))
		}
		return compare(a, b)
	})
}

// ParseSort reads "field,dir" or "field:dir". An empty value sorts by
// publishedAt descending; an unknown field falls back to publishedAt and a
// missing direction means ascending.
func ParseSort(raw string) (SortField, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FieldPublishedAt, true
	}

	field, dir, _ := strings.Cut(strings.ReplaceAll(raw, ":", ","), ",")
	desc := strings.EqualFold(strings.TrimSpace(dir), "desc")

	switch strings.ToLower(strings.TrimSpace(field)) {
	case "title":
		return FieldTitle, desc
	case "creator", "author":
		return FieldCreator, desc
	default:
		return FieldPublishedAt, desc
	}
}
