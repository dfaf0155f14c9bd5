package cache

import (
	"encoding/json"
	"strings"
	"time"
)

// Entry is a serialized value as stored by a tier.
type Entry struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// FreshAt reports whether the entry is still servable at now under ttl.
// An entry exactly ttl old is still fresh.
func (e Entry) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) <= ttl
}

// Record is what the fast tier holds: the entry plus the time it entered the
// fast tier. For produced values CachedAt equals StoredAt; for entries warmed
// from the durable tier CachedAt is the warm time.
type Record struct {
	Entry    Entry
	CachedAt time.Time
}

// NormalizeKey trims surrounding whitespace and lowercases the key so that
// "Foo " and "foo" address the same entry.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
