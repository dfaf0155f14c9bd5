package postgres

import (
	"fmt"
	"net/url"
)

type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("PostgreSQL host is required")
	}

	if c.Port <= 0 {
		c.Port = 5432
	}

	if c.Database == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	if c.Username == "" {
		return fmt.Errorf("PostgreSQL username is required")
	}

	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}

	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}

// GetConnectionString returns a postgres:// URL understood by pgx
func (c *Config) GetConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

func NewConfigFromURL(connStr string) (*Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if len(u.Path) < 2 {
		return nil, fmt.Errorf("invalid PostgreSQL URL: database name is missing")
	}

	config := &Config{
		Host:     u.Hostname(),
		Database: u.Path[1:],
		Username: u.User.Username(),
		SSLMode:  "prefer",
		Port:     5432,
	}

	if u.Port() != "" {
		port := 5432
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err == nil {
			config.Port = port
		}
	}

	if password, ok := u.User.Password(); ok {
		config.Password = password
	}

	if sslMode := u.Query().Get("sslmode"); sslMode != "" {
		config.SSLMode = sslMode
	}

	return config, nil
}
