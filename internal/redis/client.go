package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	apperrors "places-cache/internal/common/errors"
)

// ErrNil is returned by Get and GetJSON when the key does not exist
var ErrNil = errors.New("redis: key not found")

type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	PoolSize  int    `json:"pool_size"`
	KeyPrefix string `json:"key_prefix"`
	// Timeout bounds dialing and each command. A slow cache tier must not
	// hold a lookup longer than calling Google would.
	Timeout time.Duration `json:"timeout"`
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperrors.ConnectionError("failed to connect to Redis", err).
			WithContext("address", config.Address)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) key(key string) string {
	return c.config.KeyPrefix + key
}

// GetGoRedisClient exposes the underlying go-redis client for libraries
// that need it directly, such as redsync. Keys written through it are not
// prefixed.
func (c *Client) GetGoRedisClient() *redis.Client {
	return c.rdb
}

// KeyPrefix returns the prefix applied to every key
func (c *Client) KeyPrefix() string {
	return c.config.KeyPrefix
}

// Set stores value under key. Strings and byte slices are written as-is,
// anything else is JSON encoded. A zero expiration keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	var data []byte
	var err error

	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		data, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
	}

	return c.rdb.Set(ctx, c.key(key), data, expiration).Err()
}

// Get returns the raw value stored under key, or ErrNil
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	return val, err
}

// GetJSON decodes the JSON value stored under key into dest
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}
