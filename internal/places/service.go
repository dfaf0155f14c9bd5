package places

import (
	"context"
	"strings"
	"time"

	"places-cache/internal/common/cache"
	"places-cache/internal/common/errors"
	"places-cache/internal/common/logging"
)

// Lookup is the upstream the service reads through to. *Client implements it.
type Lookup interface {
	TextSearch(ctx context.Context, query string) (Place, error)
	PlaceDetails(ctx context.Context, placeID string) (PlaceDetails, error)
	Geocode(ctx context.Context, address string) (GeocodeResult, error)
}

// TTLs are the freshness windows per lookup kind
type TTLs struct {
	Search         time.Duration
	DetailsFast    time.Duration
	DetailsDurable time.Duration
	Geocode        time.Duration
}

// DefaultTTLs mirrors the configuration defaults
func DefaultTTLs() TTLs {
	return TTLs{
		Search:         7 * 24 * time.Hour,
		DetailsFast:    24 * time.Hour,
		DetailsDurable: 7 * 24 * time.Hour,
		Geocode:        7 * 24 * time.Hour,
	}
}

const (
	searchPrefix  = "search:"
	detailsPrefix = "details:"
	geocodePrefix = "geocode:"
)

// Service answers place lookups from the cache, falling back to Google
type Service struct {
	lookup Lookup
	cache  *cache.ReadThrough
	ttls   TTLs
	logger logging.Logger
}

func NewService(lookup Lookup, rt *cache.ReadThrough, ttls TTLs, logger logging.Logger) *Service {
	defaults := DefaultTTLs()
	if ttls.Search <= 0 {
		ttls.Search = defaults.Search
	}
	if ttls.DetailsFast <= 0 {
		ttls.DetailsFast = defaults.DetailsFast
	}
	if ttls.DetailsDurable <= 0 {
		ttls.DetailsDurable = defaults.DetailsDurable
	}
	if ttls.Geocode <= 0 {
		ttls.Geocode = defaults.Geocode
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Service{
		lookup: lookup,
		cache:  rt,
		ttls:   ttls,
		logger: logger.WithFields(logging.Field{Key: "component", Value: "places_service"}),
	}
}

// Search resolves a free-text query to its best matching place
func (s *Service) Search(ctx context.Context, query string) (Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Place{}, errors.ValidationError("query is required")
	}

	return cache.Get(ctx, s.cache, searchPrefix+query, cache.Options[Place]{
		Producer: func(ctx context.Context) (Place, error) {
			return s.lookup.TextSearch(ctx, query)
		},
		Validate:   Place.Complete,
		FastTTL:    s.ttls.Search,
		DurableTTL: s.ttls.Search,
	})
}

// Details returns the detail record for a place ID
func (s *Service) Details(ctx context.Context, placeID string) (PlaceDetails, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return PlaceDetails{}, errors.ValidationError("place id is required")
	}

	return cache.Get(ctx, s.cache, detailsPrefix+placeID, cache.Options[PlaceDetails]{
		Producer: func(ctx context.Context) (PlaceDetails, error) {
			return s.lookup.PlaceDetails(ctx, placeID)
		},
		Validate:   PlaceDetails.Complete,
		FastTTL:    s.ttls.DetailsFast,
		DurableTTL: s.ttls.DetailsDurable,
	})
}

// Geocode resolves an address to coordinates
func (s *Service) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return GeocodeResult{}, errors.ValidationError("address is required")
	}

	result, err := cache.Get(ctx, s.cache, geocodePrefix+address, cache.Options[GeocodeResult]{
		Producer: func(ctx context.Context) (GeocodeResult, error) {
			return s.lookup.Geocode(ctx, address)
		},
		Validate:   GeocodeResult.Complete,
		FastTTL:    s.ttls.Geocode,
		DurableTTL: s.ttls.Geocode,
	})
	if err == nil && !result.Complete() {
		s.logger.WithContext(ctx).Info("Geocode result is partial and was not cached",
			logging.Field{Key: "address", Value: address},
		)
	}
	return result, err
}
