// Package config provides configuration management for the places cache service.
// It handles loading configuration from environment variables with sensible defaults
// and validates the configuration to ensure the application starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: "console" or "json" (default: console); read by the logging package with LOG_FILE
//   - API_RATE_LIMIT_RPS: inbound requests per second per client IP, 0 to disable (default: 0)
//
// Durable Tier:
//   - DURABLE_TIER: "sqlite", "postgres", "redis", "memcache" or "none" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./places_cache.db)
//   - POSTGRES_URL: postgres:// connection URL; when set it replaces the POSTGRES_* fields below
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//   - REDIS_ADDRESS (default: localhost:6379), REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE, REDIS_KEY_PREFIX
//   - MEMCACHE_SERVERS: comma separated host:port list (default: localhost:11211)
//
// Google Maps:
//   - GOOGLE_MAPS_API_KEY: API key (required)
//   - PLACES_BASE_URL: API base URL (default: https://maps.googleapis.com/maps/api)
//   - PLACES_RATE_LIMIT_RPS: outbound requests per second (default: 10)
//   - PLACES_TIMEOUT: per request timeout (default: 10s)
//
// Cache:
//   - PLACES_SEARCH_TTL: text search freshness (default: 7d)
//   - PLACES_DETAILS_FAST_TTL: place details freshness in process (default: 24h)
//   - PLACES_DETAILS_DURABLE_TTL: place details freshness in the durable tier (default: 7d)
//   - GEOCODE_TTL: geocoding freshness (default: 7d)
//   - FAST_TIER_MAX_ENTRIES: bound the in-process tier with LRU eviction, 0 for unbounded (default: 0)
//   - FAST_TIER_CLEANUP_INTERVAL: expired entry sweep interval for the unbounded tier (default: 10m)
//   - CACHE_COALESCE: share one upstream call between concurrent misses (default: true)
//   - CACHE_PURGE_SCHEDULE: cron schedule for deleting stale durable rows, empty to disable (default: @daily)
//   - DISTRIBUTED_LOCKS: serialize upstream calls per key and the purge job across instances
//     through Redis locks on REDIS_ADDRESS (default: false)
//
// Durations accept Go syntax ("90s", "24h") plus day and week suffixes ("7d", "2w").
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"places-cache/internal/common/utils"
	"places-cache/internal/common/validation"
)

// Config holds all configuration values for the places cache service.
// String fields hold the raw environment values; typed accessors parse them
// after Validate has accepted the configuration.
type Config struct {
	// Application settings
	Port            string
	LogLevel        string
	APIRateLimitRPS string

	// Durable tier selection
	DurableTier  string
	DatabasePath string

	// PostgreSQL
	PostgresURL      string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis
	RedisAddress   string
	RedisPassword  string
	RedisDB        string
	RedisPoolSize  string
	RedisKeyPrefix string

	// Memcached
	MemcacheServers string

	// Google Maps
	GoogleMapsAPIKey   string
	PlacesBaseURL      string
	PlacesRateLimitRPS string
	PlacesTimeout      string

	// Cache TTLs and behaviour
	PlacesSearchTTL         string
	PlacesDetailsFastTTL    string
	PlacesDetailsDurableTTL string
	GeocodeTTL              string
	FastTierMaxEntries      string
	FastTierCleanupInterval string
	CacheCoalesce           bool
	CachePurgeSchedule      string
	DistributedLocks        bool
}

// Load creates a new Config instance with values loaded from environment variables.
// It does not validate; call Validate on the result.
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		APIRateLimitRPS: getEnv("API_RATE_LIMIT_RPS", "0"),

		DurableTier:  strings.ToLower(getEnv("DURABLE_TIER", "sqlite")),
		DatabasePath: getEnv("DATABASE_PATH", "./places_cache.db"),

		PostgresURL:      getEnv("POSTGRES_URL", ""),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "places_cache"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:   getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnv("REDIS_DB", "0"),
		RedisPoolSize:  getEnv("REDIS_POOL_SIZE", "10"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "places-cache:"),

		MemcacheServers: getEnv("MEMCACHE_SERVERS", "localhost:11211"),

		GoogleMapsAPIKey:   getEnv("GOOGLE_MAPS_API_KEY", ""),
		PlacesBaseURL:      getEnv("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api"),
		PlacesRateLimitRPS: getEnv("PLACES_RATE_LIMIT_RPS", "10"),
		PlacesTimeout:      getEnv("PLACES_TIMEOUT", "10s"),

		PlacesSearchTTL:         getEnv("PLACES_SEARCH_TTL", "7d"),
		PlacesDetailsFastTTL:    getEnv("PLACES_DETAILS_FAST_TTL", "24h"),
		PlacesDetailsDurableTTL: getEnv("PLACES_DETAILS_DURABLE_TTL", "7d"),
		GeocodeTTL:              getEnv("GEOCODE_TTL", "7d"),
		FastTierMaxEntries:      getEnv("FAST_TIER_MAX_ENTRIES", "0"),
		FastTierCleanupInterval: getEnv("FAST_TIER_CLEANUP_INTERVAL", "10m"),
		CacheCoalesce:           getBoolEnv("CACHE_COALESCE", true),
		CachePurgeSchedule:      getEnvAllowEmpty("CACHE_PURGE_SCHEDULE", "@daily"),
		DistributedLocks:        getBoolEnv("DISTRIBUTED_LOCKS", false),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty is getEnv for variables where an explicit empty value
// means "disabled" rather than "use the default".
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value.
// Unparseable values fall back to the default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, formats and cross-field dependencies.
// It returns a descriptive error naming the offending variable.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if rps, err := strconv.ParseFloat(c.APIRateLimitRPS, 64); err != nil || rps < 0 {
		return fmt.Errorf("API_RATE_LIMIT_RPS must be zero or a positive number")
	}

	if c.GoogleMapsAPIKey == "" {
		return fmt.Errorf("GOOGLE_MAPS_API_KEY environment variable is required")
	}
	v := validation.Default()
	if err := v.Var(c.PlacesBaseURL, "required,http_url", "PLACES_BASE_URL"); err != nil {
		return err
	}
	if rps, err := strconv.ParseFloat(c.PlacesRateLimitRPS, 64); err != nil || rps <= 0 {
		return fmt.Errorf("PLACES_RATE_LIMIT_RPS must be a positive number")
	}

	if err := c.ValidateDurableTier(); err != nil {
		return err
	}

	if c.DistributedLocks {
		if err := c.validateRedis("DISTRIBUTED_LOCKS is enabled"); err != nil {
			return err
		}
	}

	durations := []struct {
		name  string
		value string
	}{
		{"PLACES_TIMEOUT", c.PlacesTimeout},
		{"PLACES_SEARCH_TTL", c.PlacesSearchTTL},
		{"PLACES_DETAILS_FAST_TTL", c.PlacesDetailsFastTTL},
		{"PLACES_DETAILS_DURABLE_TTL", c.PlacesDetailsDurableTTL},
		{"GEOCODE_TTL", c.GeocodeTTL},
		{"FAST_TIER_CLEANUP_INTERVAL", c.FastTierCleanupInterval},
	}
	for _, d := range durations {
		if parsed, err := utils.ParseDuration(d.value); err != nil || parsed <= 0 {
			return fmt.Errorf("%s must be a positive duration (e.g., '90s', '24h', '7d')", d.name)
		}
	}

	if n, err := strconv.Atoi(c.FastTierMaxEntries); err != nil || n < 0 {
		return fmt.Errorf("FAST_TIER_MAX_ENTRIES must be zero or a positive number")
	}

	if err := v.Var(c.CachePurgeSchedule, "omitempty,cron_schedule", "CACHE_PURGE_SCHEDULE"); err != nil {
		return err
	}

	return nil
}

// ValidateDurableTier checks only the durable tier settings. Tools that
// touch storage without calling Google use it instead of Validate.
func (c *Config) ValidateDurableTier() error {
	switch c.DurableTier {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when DURABLE_TIER is sqlite")
		}
	case "postgres", "postgresql":
		if c.PostgresURL != "" {
			if !strings.HasPrefix(c.PostgresURL, "postgres://") && !strings.HasPrefix(c.PostgresURL, "postgresql://") {
				return fmt.Errorf("POSTGRES_URL must start with postgres://")
			}
			return nil
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	case "redis":
		if err := c.validateRedis("DURABLE_TIER is redis"); err != nil {
			return err
		}
	case "memcache", "memcached":
		if len(c.MemcacheAddresses()) == 0 {
			return fmt.Errorf("MEMCACHE_SERVERS is required when DURABLE_TIER is memcache")
		}
	case "none":
	default:
		return fmt.Errorf("DURABLE_TIER must be one of sqlite, postgres, redis, memcache or none")
	}
	return nil
}

func (c *Config) validateRedis(reason string) error {
	if c.RedisAddress == "" {
		return fmt.Errorf("REDIS_ADDRESS is required when %s", reason)
	}
	if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
		return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
	}
	if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
		return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
	}
	return nil
}

// MemcacheAddresses splits MEMCACHE_SERVERS into individual addresses
func (c *Config) MemcacheAddresses() []string {
	var servers []string
	for _, s := range strings.Split(c.MemcacheServers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}

func (c *Config) SearchTTL() time.Duration         { return mustDuration(c.PlacesSearchTTL) }
func (c *Config) DetailsFastTTL() time.Duration    { return mustDuration(c.PlacesDetailsFastTTL) }
func (c *Config) DetailsDurableTTL() time.Duration { return mustDuration(c.PlacesDetailsDurableTTL) }
func (c *Config) GeocodeCacheTTL() time.Duration   { return mustDuration(c.GeocodeTTL) }
func (c *Config) CleanupInterval() time.Duration   { return mustDuration(c.FastTierCleanupInterval) }
func (c *Config) RequestTimeout() time.Duration    { return mustDuration(c.PlacesTimeout) }

// LongestDurableTTL is the age after which no lookup can use a durable row
func (c *Config) LongestDurableTTL() time.Duration {
	longest := c.SearchTTL()
	for _, ttl := range []time.Duration{c.DetailsDurableTTL(), c.GeocodeCacheTTL()} {
		if ttl > longest {
			longest = ttl
		}
	}
	return longest
}

func (c *Config) MaxEntries() int {
	n, _ := strconv.Atoi(c.FastTierMaxEntries)
	return n
}

func (c *Config) PostgresPortNumber() int {
	port, _ := strconv.Atoi(c.PostgresPort)
	return port
}

func (c *Config) RedisDBNumber() int {
	db, _ := strconv.Atoi(c.RedisDB)
	return db
}

func (c *Config) RedisPoolSizeNumber() int {
	n, _ := strconv.Atoi(c.RedisPoolSize)
	return n
}

func (c *Config) RateLimitRPS() float64 {
	rps, _ := strconv.ParseFloat(c.PlacesRateLimitRPS, 64)
	return rps
}

// InboundRateLimitRPS is the per-client request rate; zero disables the limiter
func (c *Config) InboundRateLimitRPS() float64 {
	rps, _ := strconv.ParseFloat(c.APIRateLimitRPS, 64)
	return rps
}

// mustDuration parses a duration already accepted by Validate. Invalid
// values yield zero, which callers treat as "use the default".
func mustDuration(value string) time.Duration {
	d, err := utils.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
