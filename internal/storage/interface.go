// Package storage provides the durable tier of the places read-through cache.
//
// Each backend lives in its own sub-package and registers a factory with the
// default registry from its init function:
//
//	import (
//		"places-cache/internal/storage"
//		_ "places-cache/internal/storage/sqlite"
//	)
//
//	tier, err := storage.NewDurableTier(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tier.Close()
//
// Supported backends are sqlite (mattn/go-sqlite3), postgres (jackc/pgx),
// redis (go-redis) and memcache (gomemcache). All of them store the same
// JSON-encoded cache.Entry payload keyed by the normalized lookup key.
package storage

import (
	"context"
	"time"

	"places-cache/internal/common/cache"
)

// DurableTier is a cache.DurableTier with connection lifecycle management
type DurableTier interface {
	cache.DurableTier

	// Health checks connectivity to the backing store
	Health(ctx context.Context) error
	Close() error
}

// Purger is implemented by backends without native key expiry. Purge
// physically deletes entries stored before olderThan and returns how many
// were removed.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

type StorageFactory interface {
	Create(config StorageConfig) (DurableTier, error)
	GetType() string
}

// GenericConfig is a simple map-based implementation of StorageConfig
type GenericConfig map[string]interface{}

func (gc GenericConfig) Validate() error {
	return nil
}

func (gc GenericConfig) GetType() string {
	if t, ok := gc["type"].(string); ok {
		return t
	}
	return "unknown"
}

func (gc GenericConfig) GetConnectionString() string {
	if cs, ok := gc["connection_string"].(string); ok {
		return cs
	}
	return ""
}

// String returns the string value stored under key, or "" when absent
func (gc GenericConfig) String(key string) string {
	if v, ok := gc[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the int value stored under key, or 0 when absent
func (gc GenericConfig) Int(key string) int {
	switch v := gc[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Strings returns the []string value stored under key
func (gc GenericConfig) Strings(key string) []string {
	if v, ok := gc[key].([]string); ok {
		return v
	}
	return nil
}
