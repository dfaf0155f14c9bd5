// Package app wires configuration, the durable tier, the read-through cache,
// the Google Maps client and the HTTP surface into a running service.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"places-cache/internal/common/cache"
	"places-cache/internal/common/logging"
	"places-cache/internal/config"
	"places-cache/internal/locks"
	"places-cache/internal/middleware"
	"places-cache/internal/places"
	"places-cache/internal/redis"
	"places-cache/internal/storage"
)

// Version is reported by /health
const Version = "1.0.0"

const metricsNamespace = "places"

// App holds all the application dependencies
type App struct {
	Config   *config.Config
	Durable  storage.DurableTier
	Cache    *cache.ReadThrough
	Client   *places.Client
	Places   *places.Service
	Locker   *locks.RedsyncLocker
	Registry *prometheus.Registry
	Logger   logging.Logger

	httpMetrics *middleware.HTTPMetrics
	lockClient  *redis.Client
	purgeCron   *cron.Cron
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Logger:   logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.httpMetrics = middleware.NewHTTPMetrics(app.Registry, metricsNamespace)

	// Initialize components in order of dependency
	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	if err := app.initializeLocks(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeCache(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializePlaces(); err != nil {
		app.Cleanup()
		return nil, err
	}

	return app, nil
}

func (app *App) initializeCache() error {
	metrics, err := cache.NewMetrics(app.Registry, metricsNamespace)
	if err != nil {
		return fmt.Errorf("failed to register cache metrics: %w", err)
	}

	var fast cache.FastTier
	if n := app.Config.MaxEntries(); n > 0 {
		app.Logger.Info("Fast tier: bounded LRU", logging.Field{Key: "max_entries", Value: n})
		fast = cache.NewLRUTier(n, nil)
	} else {
		app.Logger.Info("Fast tier: go-cache", logging.Field{Key: "cleanup_interval", Value: app.Config.CleanupInterval()})
		fast = cache.NewLocalTier(app.Config.CleanupInterval())
	}

	var durable cache.DurableTier
	if app.Durable != nil {
		durable = app.Durable
	}
	var locker cache.Locker
	if app.Locker != nil {
		locker = app.Locker
	}

	app.Cache = cache.New(fast, durable, cache.Config{
		FastTTL:    app.Config.DetailsFastTTL(),
		DurableTTL: app.Config.DetailsDurableTTL(),
		Coalesce:   app.Config.CacheCoalesce,
		Logger:     app.Logger,
		Metrics:    metrics,
		Locker:     locker,
	})
	return nil
}

func (app *App) initializePlaces() error {
	client, err := places.NewClient(places.ClientConfig{
		APIKey:            app.Config.GoogleMapsAPIKey,
		BaseURL:           app.Config.PlacesBaseURL,
		Timeout:           app.Config.RequestTimeout(),
		RequestsPerSecond: app.Config.RateLimitRPS(),
	})
	if err != nil {
		return fmt.Errorf("failed to create places client: %w", err)
	}

	app.Client = client
	app.Places = places.NewService(client, app.Cache, places.TTLs{
		Search:         app.Config.SearchTTL(),
		DetailsFast:    app.Config.DetailsFastTTL(),
		DetailsDurable: app.Config.DetailsDurableTTL(),
		Geocode:        app.Config.GeocodeCacheTTL(),
	}, nil)
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	app.stopPurgeJob()
	if app.Cache != nil {
		app.Cache.Close()
	}
	if app.Durable != nil {
		if err := app.Durable.Close(); err != nil {
			app.Logger.Warn("Error closing durable tier", logging.Err(err))
		}
	}
	if app.lockClient != nil {
		app.lockClient.Close()
	}
}
