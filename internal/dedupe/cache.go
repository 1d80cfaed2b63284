package dedupe

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache keeps a fixed-size set of recently confirmed article identifiers.
type Cache struct {
	items *expirable.LRU[string, struct{}]
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{items: expirable.NewLRU[string, struct{}](capacity, nil, ttl)}
}

// IsSeen returns true when the key has already been observed inside the ttl window.
// It does not mark the key as seen; use MarkSeen() to record a key.
func (c *Cache) IsSeen(key string) bool {
	_, ok := c.items.Get(key)
	return ok
}

// MarkSeen records that a key has been processed.
func (c *Cache) MarkSeen(key string) {
	c.items.Add(key, struct{}{})
}

// Len reports the number of cached keys, expired ones included until purged.
func (c *Cache) Len() int {
	return c.items.Len()
}
