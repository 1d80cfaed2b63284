package feed

import (
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/DeafMist/news-relay/internal/models"
	"github.com/DeafMist/news-relay/internal/processing"
)

const derivedTitleWords = 10

// SourceURI returns the identity of a feed item: its guid, or its link when
// the feed omits guids.
func SourceURI(item *gofeed.Item) string {
	if item == nil {
		return ""
	}
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	return strings.TrimSpace(item.Link)
}

// Normalize maps a parsed feed item onto an Article. It returns false when
// the item has no source URI to derive an identifier from.
func Normalize(item *gofeed.Item) (models.Article, bool) {
	uri := SourceURI(item)
	if uri == "" {
		return models.Article{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = processing.GenerateTitleFromText(processing.PlainText(item.Description), derivedTitleWords)
	}

	a := models.Article{
		ID:          processing.ArticleID(uri),
		Title:       title,
		Link:        strings.TrimSpace(item.Link),
		Content:     item.Description,
		Creator:     creator(item),
		PublishedAt: publishedAt(item),
		Media:       media(item),
	}
	if len(item.Categories) > 0 {
		a.Categories = append([]string(nil), item.Categories...)
	}
	return a, true
}

func creator(item *gofeed.Item) string {
	if dc := item.DublinCoreExt; dc != nil {
		for _, c := range dc.Creator {
			if c = strings.TrimSpace(c); c != "" {
				return c
			}
		}
	}
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	for _, p := range item.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			return strings.TrimSpace(p.Name)
		}
	}
	return ""
}

func publishedAt(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return time.Time{}
}

// media returns the first media:content element carrying a url.
func media(item *gofeed.Item) *models.Media {
	mediaExt, ok := item.Extensions["media"]
	if !ok {
		return nil
	}

	for _, content := range mediaExt["content"] {
		u := strings.TrimSpace(content.Attrs["url"])
		if u == "" {
			continue
		}
		return &models.Media{
			URL:    u,
			Width:  atoi(content.Attrs["width"]),
			Height: atoi(content.Attrs["height"]),
		}
	}
	return nil
}

func atoi(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
