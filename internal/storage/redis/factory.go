package redis

import (
	"fmt"

	redisclient "places-cache/internal/redis"
	"places-cache/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.DurableTier, error) {
	switch c := config.(type) {
	case *redisclient.Config:
		return Connect(c)
	case storage.GenericConfig:
		return Connect(&redisclient.Config{
			Address:   c.String("address"),
			Password:  c.String("password"),
			DB:        c.Int("db"),
			PoolSize:  c.Int("pool_size"),
			KeyPrefix: c.String("key_prefix"),
		})
	default:
		return nil, fmt.Errorf("invalid config type for Redis storage")
	}
}

func (f *Factory) GetType() string {
	return "redis"
}

func init() {
	storage.Register("redis", &Factory{})
}
