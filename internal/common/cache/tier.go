package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a DurableTier when no fresh entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// FastTier is the in-process layer. Implementations must be safe for
// concurrent use.
type FastTier interface {
	Get(key string) (Record, bool)
	Set(key string, record Record, ttl time.Duration)
	Len() int
	Close() error
}

// DurableTier is the shared, persistent layer.
//
// Get returns the entry for key only if its StoredAt is at or after notBefore,
// and ErrNotFound otherwise. Upsert overwrites any existing entry for the key;
// ttl is a hint for stores with native expiry and may be ignored.
type DurableTier interface {
	Name() string
	Get(ctx context.Context, key string, notBefore time.Time) (*Entry, error)
	Upsert(ctx context.Context, entry Entry, ttl time.Duration) error
}
