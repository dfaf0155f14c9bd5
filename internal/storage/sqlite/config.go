package sqlite

import (
	"fmt"
	"strings"
	"time"
)

// Config for the SQLite durable tier. The service and cache-purge may open
// the same file, so writers wait BusyTimeout for the lock instead of failing.
type Config struct {
	DatabasePath string
	BusyTimeout  time.Duration
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

// GetConnectionString returns the go-sqlite3 DSN with WAL journaling and the
// busy timeout applied.
func (c *Config) GetConnectionString() string {
	sep := "?"
	if strings.Contains(c.DatabasePath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_journal_mode=WAL&_busy_timeout=%d", c.DatabasePath, sep, c.BusyTimeout.Milliseconds())
}
