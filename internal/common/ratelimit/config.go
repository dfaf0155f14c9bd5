package ratelimit

import (
	"fmt"
	"time"
)

// Config represents rate limiter configuration
type Config struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstSize         int     `json:"burst_size"`
	Enabled           bool    `json:"enabled"`

	// IdleTimeout drops a per-key bucket that has not been used for this long.
	// A dropped bucket comes back full.
	IdleTimeout time.Duration `json:"idle_timeout,omitempty"`
}

// Validate fills defaults and rejects impossible settings
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative, got %v", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
	if c.BurstSize <= 0 {
		c.BurstSize = int(c.RequestsPerSecond)
		if c.BurstSize < 1 {
			c.BurstSize = 1
		}
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}

	return nil
}
