package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalTier wraps patrickmn/go-cache as an unbounded fast tier. Expired
// records are removed by go-cache's janitor every cleanupInterval.
type LocalTier struct {
	cache *gocache.Cache
}

// NewLocalTier creates a go-cache backed fast tier
func NewLocalTier(cleanupInterval time.Duration) *LocalTier {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &LocalTier{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get retrieves a record from the local cache
func (l *LocalTier) Get(key string) (Record, bool) {
	v, found := l.cache.Get(key)
	if !found {
		return Record{}, false
	}
	record, ok := v.(Record)
	return record, ok
}

// Set stores a record; go-cache drops it physically once ttl has elapsed
func (l *LocalTier) Set(key string, record Record, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	l.cache.Set(key, record, ttl)
}

// Len returns the number of records, including expired ones not yet cleaned up
func (l *LocalTier) Len() int {
	return l.cache.ItemCount()
}

// Close flushes the cache. The janitor goroutine stops once the cache is
// garbage collected.
func (l *LocalTier) Close() error {
	l.cache.Flush()
	return nil
}
