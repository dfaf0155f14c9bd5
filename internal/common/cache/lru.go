package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRUTier is a bounded fast tier backed by golang-lru. When full, the least
// recently used record is evicted. Records past their ttl are dropped lazily
// on access.
type LRUTier struct {
	mu        sync.Mutex
	lru       *simplelru.LRU[string, lruItem]
	now       func() time.Time
	evictions uint64
}

type lruItem struct {
	record    Record
	expiresAt time.Time
}

// NewLRUTier creates a bounded fast tier. now may be nil, in which case
// time.Now is used.
func NewLRUTier(maxEntries int, now func() time.Time) *LRUTier {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if now == nil {
		now = time.Now
	}
	// NewLRU only fails on a non-positive size
	lru, _ := simplelru.NewLRU[string, lruItem](maxEntries, nil)
	return &LRUTier{lru: lru, now: now}
}

// Get retrieves a record and marks it most recently used
func (c *LRUTier) Get(key string) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.lru.Get(key)
	if !ok {
		return Record{}, false
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		c.lru.Remove(key)
		return Record{}, false
	}
	return item.record, true
}

// Set stores a record, evicting the least recently used one when full
func (c *LRUTier) Set(key string, record Record, ttl time.Duration) {
	item := lruItem{record: record}
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	if c.lru.Add(key, item) {
		c.evictions++
	}
}

// Len returns the current number of records
func (c *LRUTier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Evictions returns how many records were dropped for capacity
func (c *LRUTier) Evictions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

// Close drops all records
func (c *LRUTier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	return nil
}

var (
	_ FastTier = (*LocalTier)(nil)
	_ FastTier = (*LRUTier)(nil)
)
