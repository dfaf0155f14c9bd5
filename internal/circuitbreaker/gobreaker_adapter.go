package circuitbreaker

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/sony/gobreaker"
	"places-cache/internal/common/errors"
	"places-cache/internal/common/logging"
)

// GoBreakerAdapter wraps Sony's gobreaker
type GoBreakerAdapter struct {
	name    string
	config  Config
	logger  logging.Logger
	breaker *gobreaker.CircuitBreaker
}

// NewGoBreaker creates a new circuit breaker. An invalid config is replaced
// by DefaultConfig.
func NewGoBreaker(name string, config Config, logger logging.Logger) *GoBreakerAdapter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	if err := config.Validate(); err != nil {
		logger.Warn("Invalid circuit breaker config, using defaults",
			logging.Field{Key: "error", Value: err.Error()},
			logging.Field{Key: "name", Value: name},
		)
		config = DefaultConfig()
	}

	g := &GoBreakerAdapter{
		name:   name,
		config: config,
		logger: logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker(g.settings())
	return g
}

func (g *GoBreakerAdapter) settings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        g.name,
		MaxRequests: uint32(g.config.MaxConcurrentRequests),
		Interval:    g.config.Interval,
		Timeout:     g.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(g.config.MaxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Info("Circuit breaker state changed",
				logging.Field{Key: "breaker", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()},
			)
		},
		IsSuccessful: isSuccessful,
	}
}

// isSuccessful treats answers the upstream gave on purpose (bad input,
// nothing found) as healthy responses. Cancellation by the caller says
// nothing about the upstream either.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if stderrors.Is(err, context.Canceled) {
		return true
	}
	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeNotFound:
		return true
	}
	return false
}

// Execute runs fn within the circuit breaker. When the circuit is open fn
// is not called and an upstream error with code CIRCUIT_OPEN is returned.
func (g *GoBreakerAdapter) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.UpstreamError(g.name, err).
			WithCode("CIRCUIT_OPEN").
			WithContext("breaker", g.name)
	}

	return err
}

// State returns the current state of the circuit breaker
func (g *GoBreakerAdapter) State() State {
	return g.breaker.State()
}

// Stats returns the breaker state and the counts of the current interval
func (g *GoBreakerAdapter) Stats() Stats {
	counts := g.breaker.Counts()
	return Stats{
		Name:      g.name,
		State:     g.breaker.State().String(),
		Failures:  int(counts.TotalFailures),
		Successes: int(counts.TotalSuccesses),
	}
}

// String implements fmt.Stringer
func (g *GoBreakerAdapter) String() string {
	return fmt.Sprintf("circuitbreaker(%s, %s)", g.name, g.State())
}
