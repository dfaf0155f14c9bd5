// Package handlers exposes the cached place lookups over HTTP
package handlers

import (
	"context"

	"places-cache/internal/circuitbreaker"
	"places-cache/internal/common/logging"
	"places-cache/internal/common/validation"
	"places-cache/internal/places"
)

// PlaceLookup is satisfied by *places.Service
type PlaceLookup interface {
	Search(ctx context.Context, query string) (places.Place, error)
	Details(ctx context.Context, placeID string) (places.PlaceDetails, error)
	Geocode(ctx context.Context, address string) (places.GeocodeResult, error)
}

// HealthChecker reports the health of the durable cache tier
type HealthChecker interface {
	Health(ctx context.Context) error
	Name() string
}

// BreakerReporter exposes the outbound circuit breaker state
type BreakerReporter interface {
	BreakerStats() circuitbreaker.Stats
}

type Handlers struct {
	places    PlaceLookup
	durable   HealthChecker
	breaker   BreakerReporter
	logger    logging.Logger
	validator *validation.Validator
	version   string
}

// New wires the handlers. durable and breaker may be nil.
func New(lookup PlaceLookup, durable HealthChecker, breaker BreakerReporter, version string) *Handlers {
	return &Handlers{
		places:    lookup,
		durable:   durable,
		breaker:   breaker,
		logger:    logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "handlers"}),
		validator: validation.Default(),
		version:   version,
	}
}
