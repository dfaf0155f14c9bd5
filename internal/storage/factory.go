package storage

import (
	"fmt"

	"places-cache/internal/common/errors"
	"places-cache/internal/config"
)

// NewDurableTier creates the durable tier selected by DURABLE_TIER. It
// returns nil, nil for "none"; the cache then runs on its fast tier alone.
// The backend's sub-package must be imported for its factory to be registered.
func NewDurableTier(cfg *config.Config) (DurableTier, error) {
	storageType, storageConfig, err := configFor(cfg)
	if err != nil {
		return nil, err
	}
	if storageType == "" {
		return nil, nil
	}

	return Create(storageType, storageConfig)
}

func configFor(cfg *config.Config) (string, StorageConfig, error) {
	switch cfg.DurableTier {
	case "none":
		return "", nil, nil

	case "sqlite":
		return "sqlite", GenericConfig{
			"path": cfg.DatabasePath,
		}, nil

	case "postgres", "postgresql":
		if cfg.PostgresURL != "" {
			return "postgres", GenericConfig{"connection_string": cfg.PostgresURL}, nil
		}
		return "postgres", GenericConfig{
			"host":     cfg.PostgresHost,
			"port":     cfg.PostgresPortNumber(),
			"database": cfg.PostgresDB,
			"username": cfg.PostgresUser,
			"password": cfg.PostgresPassword,
			"sslmode":  cfg.PostgresSSLMode,
		}, nil

	case "redis":
		return "redis", GenericConfig{
			"address":    cfg.RedisAddress,
			"password":   cfg.RedisPassword,
			"db":         cfg.RedisDBNumber(),
			"pool_size":  cfg.RedisPoolSizeNumber(),
			"key_prefix": cfg.RedisKeyPrefix,
		}, nil

	case "memcache", "memcached":
		return "memcache", GenericConfig{
			"servers": cfg.MemcacheAddresses(),
		}, nil

	default:
		return "", nil, errors.ConfigError(fmt.Sprintf("unsupported durable tier: %s", cfg.DurableTier))
	}
}
