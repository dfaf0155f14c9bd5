package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"places-cache/internal/common/cache"
	apperrors "places-cache/internal/common/errors"
	"places-cache/internal/storage"
)

// Adapter is a durable cache tier backed by a single SQLite table.
// stored_at holds Unix nanoseconds so freshness comparisons are exact.
type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.ConnectionError("failed to ping SQLite database", err).
			WithContext("path", config.DatabasePath)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
	}

	if err := adapter.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			stored_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_stored_at ON cache_entries(stored_at)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

func (a *Adapter) Name() string {
	return "sqlite"
}

func (a *Adapter) Get(ctx context.Context, key string, notBefore time.Time) (*cache.Entry, error) {
	var value string
	var storedAt int64

	err := a.db.QueryRowContext(ctx,
		`SELECT value, stored_at FROM cache_entries WHERE cache_key = ? AND stored_at >= ?`,
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
		Value:    []byte(value),
		StoredAt: time.Unix(0, storedAt).UTC(),
	}, nil
}

// Upsert writes the entry, replacing any existing row for the key. The ttl
// is not stored; stale rows are filtered on read and removed by Purge.
func (a *Adapter) Upsert(ctx context.Context, entry cache.Entry, ttl time.Duration) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, value, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at`,
		entry.Key, string(entry.Value), entry.StoredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (a *Adapter) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE stored_at < ?`, olderThan.UnixNano())
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
