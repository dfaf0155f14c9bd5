package sqlite

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
		return NewAdapter(&Config{DatabasePath: c.String("path")})
	default:
		return nil, fmt.Errorf("invalid config type for SQLite storage")
	}
}

func (f *Factory) GetType() string {
	return "sqlite"
}

func init() {
	storage.Register("sqlite", &Factory{})
}
