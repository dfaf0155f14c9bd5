// Package redis implements the durable cache tier on Redis. Entries are
// stored as JSON under the lookup key with a native expiry equal to the
// durable TTL, so no purge job is needed.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"places-cache/internal/common/cache"
	redisclient "places-cache/internal/redis"
	"places-cache/internal/storage"
)

const keyNamespace = "entry:"

type Adapter struct {
	client *redisclient.Client
	owned  bool
}

// NewAdapter wraps an existing client. The caller keeps ownership and Close
// leaves the client open.
func NewAdapter(client *redisclient.Client) *Adapter {
	return &Adapter{client: client}
}

// Connect dials Redis and returns an adapter that owns the connection
func Connect(config *redisclient.Config) (*Adapter, error) {
	client, err := redisclient.NewClient(config)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: client, owned: true}, nil
}

func (a *Adapter) Name() string {
	return "redis"
}

func (a *Adapter) Get(ctx context.Context, key string, notBefore time.Time) (*cache.Entry, error) {
	var entry cache.Entry
	if err := a.client.GetJSON(ctx, keyNamespace+key, &entry); err != nil {
		if errors.Is(err, redisclient.ErrNil) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if entry.StoredAt.Before(notBefore) {
		return nil, cache.ErrNotFound
	}
	entry.Key = key
	return &entry, nil
}

// Upsert writes the entry with ttl as its Redis expiry. A non-positive ttl
// keeps the key until it is overwritten.
func (a *Adapter) Upsert(ctx context.Context, entry cache.Entry, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := a.client.Set(ctx, keyNamespace+entry.Key, entry, ttl); err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.client.Health(ctx)
}

func (a *Adapter) Close() error {
	if a.owned {
		return a.client.Close()
	}
	return nil
}

var _ storage.DurableTier = (*Adapter)(nil)
