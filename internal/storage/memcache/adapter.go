// Package memcache implements the durable cache tier on memcached using
// bradfitz/gomemcache. Lookup keys are hashed because memcached limits keys
// to 250 bytes without whitespace, and free-text addresses violate both.
package memcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"places-cache/internal/common/cache"
	"places-cache/internal/storage"
)

// maxRelativeExpiration is the largest expiration memcached treats as
// relative seconds; larger values are read as a Unix timestamp.
const maxRelativeExpiration = 30 * 24 * time.Hour

type Config struct {
	Servers []string
	Timeout time.Duration
}

func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one memcache server is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = memcache.DefaultTimeout
	}
	return nil
}

func (c *Config) GetType() string {
	return "memcache"
}

func (c *Config) GetConnectionString() string {
	return fmt.Sprint(c.Servers)
}

type Adapter struct {
	mc  *memcache.Client
	now func() time.Time
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memcache config: %w", err)
	}

	mc := memcache.New(config.Servers...)
	mc.Timeout = config.Timeout

	return &Adapter{mc: mc, now: time.Now}, nil
}

func (a *Adapter) Name() string {
	return "memcache"
}

func (a *Adapter) Get(ctx context.Context, key string, notBefore time.Time) (*cache.Entry, error) {
	item, err := a.mc.Get(hashKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	// a hash collision would surface as a different stored key
	if entry.Key != key || entry.StoredAt.Before(notBefore) {
		return nil, cache.ErrNotFound
	}
	return &entry, nil
}

func (a *Adapter) Upsert(ctx context.Context, entry cache.Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	err = a.mc.Set(&memcache.Item{
		Key:        hashKey(entry.Key),
		Value:      data,
		Expiration: expiration(ttl, a.now()),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.mc.Ping()
}

// Close is a no-op; gomemcache releases idle connections on its own
func (a *Adapter) Close() error {
	return nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "places:" + hex.EncodeToString(sum[:])
}

// expiration converts ttl to memcached's expiration field: relative seconds
// up to 30 days, an absolute Unix timestamp beyond that, 0 for no expiry.
func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	seconds := int64((ttl + time.Second - 1) / time.Second)
	if ttl > maxRelativeExpiration {
		return int32(now.Unix() + seconds)
	}
	return int32(seconds)
}

var _ storage.DurableTier = (*Adapter)(nil)
