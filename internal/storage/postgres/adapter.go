package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"places-cache/internal/common/cache"
	apperrors "places-cache/internal/common/errors"
	"places-cache/internal/storage"
)

// Adapter is a durable cache tier backed by PostgreSQL through pgx's
// database/sql driver. stored_at holds Unix nanoseconds; TIMESTAMPTZ would
// truncate to microseconds and shift the freshness boundary.
type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	connConfig, err := pgx.ParseConfig(config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.ConnectionError("failed to ping PostgreSQL", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
	}

	if err := adapter.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			stored_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_stored_at ON cache_entries(stored_at)`,
	}

	for _, query := range queries {
		if _, err := a.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

func (a *Adapter) Name() string {
	return "postgres"
}

func (a *Adapter) Get(ctx context.Context, key string, notBefore time.Time) (*cache.Entry, error) {
	var value []byte
	var storedAt int64

	err := a.db.QueryRowContext(ctx,
		`SELECT value, stored_at FROM cache_entries WHERE cache_key = $1 AND stored_at >= $2`,
		key, notBefore.UnixNano(),
	).Scan(&value, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	return &cache.Entry{
		Key:      key,
		Value:    value,
		StoredAt: time.Unix(0, storedAt).UTC(),
	}, nil
}

func (a *Adapter) Upsert(ctx context.Context, entry cache.Entry, ttl time.Duration) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, value, stored_at) VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at`,
		entry.Key, string(entry.Value), entry.StoredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (a *Adapter) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE stored_at < $1`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}
	return result.RowsAffected()
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

var (
	_ storage.DurableTier = (*Adapter)(nil)
	_ storage.Purger      = (*Adapter)(nil)
)
