// Package circuitbreaker guards outbound API calls with Sony's gobreaker
package circuitbreaker

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// State is the breaker state as reported by gobreaker: closed, half-open or open.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Config holds the configuration for a circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// Timeout is how long the circuit breaker stays open before transitioning to half-open
	Timeout time.Duration
	// MaxConcurrentRequests is the maximum number of requests allowed in half-open state
	MaxConcurrentRequests int
	// Interval is the cyclic period in the closed state after which counts are cleared
	Interval time.Duration
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxFailures:           5,
		Timeout:               60 * time.Second,
		MaxConcurrentRequests: 1,
		Interval:              time.Minute,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.MaxFailures <= 0 {
		return fmt.Errorf("MaxFailures must be positive, got %d", c.MaxFailures)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MaxConcurrentRequests must be positive, got %d", c.MaxConcurrentRequests)
	}
	if c.Interval < 0 {
		return fmt.Errorf("Interval must not be negative, got %v", c.Interval)
	}
	return nil
}

// Stats returns statistics about the circuit breaker
type Stats struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`
}

// GoogleMapsConfig is for Google Maps Platform calls. Quota errors arrive
// in bursts, so the circuit opens quickly and probes again after 30s.
var GoogleMapsConfig = Config{
	MaxFailures:           3,
	Timeout:               30 * time.Second,
	MaxConcurrentRequests: 2,
	Interval:              time.Minute,
}
