package memcache

import (
	"fmt"

	"places-cache/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.DurableTier, error) {
	switch c := config.(type) {
	case *Config:
		return NewAdapter(c)
	case storage.GenericConfig:
		return NewAdapter(&Config{Servers: c.Strings("servers")})
	default:
		return nil, fmt.Errorf("invalid config type for memcache storage")
	}
}

func (f *Factory) GetType() string {
	return "memcache"
}

func init() {
	storage.Register("memcache", &Factory{})
}
