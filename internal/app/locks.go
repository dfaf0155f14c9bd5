package app

import (
	"fmt"

	"places-cache/internal/common/logging"
	"places-cache/internal/locks"
	"places-cache/internal/redis"
)

func (app *App) initializeLocks() error {
	if !app.Config.DistributedLocks {
		app.Logger.Info("Distributed locks: disabled")
		return nil
	}

	client, err := redis.NewClient(&redis.Config{
		Address:   app.Config.RedisAddress,
		Password:  app.Config.RedisPassword,
		DB:        app.Config.RedisDBNumber(),
		PoolSize:  app.Config.RedisPoolSizeNumber(),
		KeyPrefix: app.Config.RedisKeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis for distributed locks: %w", err)
	}

	locker, err := locks.NewRedsyncLocker(client, locks.Config{
		// a producer call is bounded by the retried request timeout
		Expiry: 3 * app.Config.RequestTimeout(),
	})
	if err != nil {
		client.Close()
		return err
	}

	app.lockClient = client
	app.Locker = locker
	app.Logger.Info("Distributed locks: Redis", logging.Field{Key: "address", Value: app.Config.RedisAddress})
	return nil
}
