package dedupe

import "context"

// Backend is a durable identifier set.
type Backend interface {
	Exists(ctx context.Context, guid string) (bool, error)
	MarkSeen(ctx context.Context, guids []string) error
}

// CachedSet answers repeated existence checks from memory and falls through
// to the durable backend otherwise. Only positive answers are cached; the
// backend stays authoritative.
type CachedSet struct {
	backend Backend
	cache   *Cache
}

// NewCachedSet wraps backend with cache.
func NewCachedSet(backend Backend, cache *Cache) *CachedSet {
	return &CachedSet{backend: backend, cache: cache}
}

// Exists reports whether guid was already recorded.
func (s *CachedSet) Exists(ctx context.Context, guid string) (bool, error) {
	if s.cache.IsSeen(guid) {
		return true, nil
	}

	ok, err := s.backend.Exists(ctx, guid)
	if err != nil {
		return false, err
	}
	if ok {
		s.cache.MarkSeen(guid)
	}
	return ok, nil
}

// MarkSeen records guids durably, then caches them.
func (s *CachedSet) MarkSeen(ctx context.Context, guids []string) error {
	if len(guids) == 0 {
		return nil
	}
	if err := s.backend.MarkSeen(ctx, guids); err != nil {
		return err
	}
	for _, g := range guids {
		s.cache.MarkSeen(g)
	}
	return nil
}
