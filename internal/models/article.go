package models

import "time"

// KeyPrefix namespaces article values in the time-bounded store.
const KeyPrefix = "article:"

// Article is the canonical record built from a feed entry. It is treated as
// an immutable value once constructed.
type Article struct {
	ID          string
	Title       string
	Link        string
	Content     string
	Creator     string
	PublishedAt time.Time // zero when the entry carried no usable date
	Categories  []string
	Media       *Media
}

// Media describes the first media attachment of an entry.
type Media struct {
	URL    string
	Width  int
	Height int
}

// StorageKey returns the store key holding the article with the given id.
func StorageKey(id string) string {
	return KeyPrefix + id
}

// HasPublishedAt reports whether the article carries a publish time.
func (a Article) HasPublishedAt() bool {
	return !a.PublishedAt.IsZero()
}
