package vocab

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedStore memoizes lookups of another ConceptStore. Source files
// repeat the same handful of codes millions of times, so even a short
// TTL keeps round trips to the vocabulary database negligible.
type CachedStore struct {
	inner ConceptStore
	cache *gocache.Cache
}

// cached is the memoized lookup outcome; misses are cached too so that
// unmapped codes do not hit the backing store on every row.
type cached struct {
	id    int64
	found bool
}

// NewCachedStore wraps a ConceptStore with an in-memory TTL cache.
func NewCachedStore(inner ConceptStore, ttl, cleanupInterval time.Duration) *CachedStore {
	return &CachedStore{
		inner: inner,
		cache: gocache.New(ttl, cleanupInterval),
	}
}

// LookupByCode implements ConceptStore.
func (s *CachedStore) LookupByCode(ctx context.Context, vocabulary, code string) (int64, bool, error) {
	key := "code\x00" + vocabulary + "\x00" + code
	return s.through(key, func() (int64, bool, error) {
		return s.inner.LookupByCode(ctx, vocabulary, code)
	})
}

// LookupByName implements ConceptStore.
func (s *CachedStore) LookupByName(ctx context.Context, vocabulary, name string) (int64, bool, error) {
	key := "name\x00" + vocabulary + "\x00" + name
	return s.through(key, func() (int64, bool, error) {
		return s.inner.LookupByName(ctx, vocabulary, name)
	})
}

// MapsTo implements ConceptStore.
func (s *CachedStore) MapsTo(ctx context.Context, sourceConceptID int64) (int64, bool, error) {
	key := fmt.Sprintf("maps\x00%d", sourceConceptID)
	return s.through(key, func() (int64, bool, error) {
		return s.inner.MapsTo(ctx, sourceConceptID)
	})
}

func (s *CachedStore) through(key string, load func() (int64, bool, error)) (int64, bool, error) {
	if val, ok := s.cache.Get(key); ok {
		hit := val.(cached)
		return hit.id, hit.found, nil
	}
	id, found, err := load()
	if err != nil {
		return 0, false, err
	}
	s.cache.Set(key, cached{id: id, found: found}, gocache.DefaultExpiration)
	return id, found, nil
}
