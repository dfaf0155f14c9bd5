package app

import (
	"context"
	"fmt"
	"time"

	"places-cache/internal/common/logging"
	"places-cache/internal/storage"

	// durable tier backends register themselves with the storage registry
	_ "places-cache/internal/storage/memcache"
	_ "places-cache/internal/storage/postgres"
	_ "places-cache/internal/storage/redis"
	_ "places-cache/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	switch app.Config.DurableTier {
	case "none":
		app.Logger.Info("Durable tier: none (fast tier only)")
	case "sqlite":
		app.Logger.Info("Durable tier: SQLite", logging.Field{Key: "path", Value: app.Config.DatabasePath})
	case "postgres", "postgresql":
		if app.Config.PostgresURL != "" {
			app.Logger.Info("Durable tier: PostgreSQL (POSTGRES_URL)")
			break
		}
		app.Logger.Info("Durable tier: PostgreSQL",
			logging.Field{Key: "host", Value: app.Config.PostgresHost},
			logging.Field{Key: "port", Value: app.Config.PostgresPort},
			logging.Field{Key: "database", Value: app.Config.PostgresDB},
		)
	case "redis":
		app.Logger.Info("Durable tier: Redis", logging.Field{Key: "address", Value: app.Config.RedisAddress})
	case "memcache", "memcached":
		app.Logger.Info("Durable tier: Memcached", logging.Field{Key: "servers", Value: app.Config.MemcacheAddresses()})
	}

	durable, err := storage.NewDurableTier(app.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize durable tier: %w", err)
	}
	if durable == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := durable.Health(ctx); err != nil {
		durable.Close()
		return fmt.Errorf("durable tier %s is unhealthy: %w", durable.Name(), err)
	}

	app.Durable = durable
	return nil
}
