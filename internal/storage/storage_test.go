package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"places-cache/internal/common/cache"
	"places-cache/internal/common/errors"
	"places-cache/internal/config"
	"places-cache/internal/storage"
	_ "places-cache/internal/storage/memcache"
	_ "places-cache/internal/storage/postgres"
	_ "places-cache/internal/storage/redis"
	_ "places-cache/internal/storage/sqlite"
)

type stubTier struct {
	name string
}

func (s *stubTier) Name() string { return s.name }
func (s *stubTier) Get(ctx context.Context, key string, notBefore time.Time) (*cache.Entry, error) {
	return nil, cache.ErrNotFound
}
func (s *stubTier) Upsert(ctx context.Context, entry cache.Entry, ttl time.Duration) error {
	return nil
}
func (s *stubTier) Health(ctx context.Context) error { return nil }
func (s *stubTier) Close() error                     { return nil }

type stubFactory struct{}

func (stubFactory) Create(config storage.StorageConfig) (storage.DurableTier, error) {
	return &stubTier{name: config.GetType()}, nil
}
func (stubFactory) GetType() string { return "stub" }

func TestRegistry(t *testing.T) {
	registry := storage.NewRegistry()
	assert.False(t, registry.IsRegistered("stub"))

	_, err := registry.Create("stub", storage.GenericConfig{})
	assert.ErrorContains(t, err, `durable tier "stub" is not registered (available: )`)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	registry.Register("stub", stubFactory{})
	registry.Register("another", stubFactory{})
	assert.True(t, registry.IsRegistered("stub"))
	assert.Equal(t, []string{"another", "stub"}, registry.GetAvailableTypes())
	assert.Panics(t, func() { registry.Register("stub", stubFactory{}) })
	assert.Panics(t, func() { registry.Register("nil", nil) })

	_, err = registry.Create("missing", storage.GenericConfig{})
	assert.ErrorContains(t, err, "available: another, stub")

	tier, err := registry.Create("stub", storage.GenericConfig{"type": "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", tier.Name())
}

func TestDefaultRegistry_Backends(t *testing.T) {
	assert.Equal(t, []string{"memcache", "postgres", "redis", "sqlite"}, storage.GetAvailableTypes())
}

func TestGenericConfig(t *testing.T) {
	gc := storage.GenericConfig{
		"path":              "/tmp/x.db",
		"port":              5432,
		"pool":              float64(3),
		"servers":           []string{"a:1", "b:2"},
		"connection_string": "postgres://u@h/db",
	}

	assert.NoError(t, gc.Validate())
	assert.Equal(t, "unknown", gc.GetType())
	assert.Equal(t, "postgres://u@h/db", gc.GetConnectionString())
	assert.Equal(t, "/tmp/x.db", gc.String("path"))
	assert.Equal(t, "", gc.String("missing"))
	assert.Equal(t, 5432, gc.Int("port"))
	assert.Equal(t, 3, gc.Int("pool"))
	assert.Equal(t, []string{"a:1", "b:2"}, gc.Strings("servers"))
}

func TestNewDurableTier(t *testing.T) {
	t.Run("none runs without a durable tier", func(t *testing.T) {
		tier, err := storage.NewDurableTier(&config.Config{DurableTier: "none"})
		assert.NoError(t, err)
		assert.Nil(t, tier)
	})

	t.Run("unsupported tier", func(t *testing.T) {
		_, err := storage.NewDurableTier(&config.Config{DurableTier: "mongo"})
		assert.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("postgres url is parsed before connecting", func(t *testing.T) {
		_, err := storage.NewDurableTier(&config.Config{
			DurableTier: "postgres",
			PostgresURL: "postgres://cache@db.internal:5432",
		})
		assert.ErrorContains(t, err, "database name is missing")
	})

	t.Run("sqlite", func(t *testing.T) {
		tier, err := storage.NewDurableTier(&config.Config{
			DurableTier:  "sqlite",
			DatabasePath: filepath.Join(t.TempDir(), "cache.db"),
		})
		require.NoError(t, err)
		defer tier.Close()

		assert.Equal(t, "sqlite", tier.Name())
		_, ok := tier.(storage.Purger)
		assert.True(t, ok)
	})
}
