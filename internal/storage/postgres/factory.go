package postgres

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
		if connStr := c.GetConnectionString(); connStr != "" {
			pgConfig, err := NewConfigFromURL(connStr)
			if err != nil {
				return nil, err
			}
			return NewAdapter(pgConfig)
		}
		return NewAdapter(&Config{
			Host:     c.String("host"),
			Port:     c.Int("port"),
			Database: c.String("database"),
			Username: c.String("username"),
			Password: c.String("password"),
			SSLMode:  c.String("sslmode"),
		})
	default:
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
