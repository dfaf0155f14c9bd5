package ratelimit

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// localLimiter keeps one global bucket plus per-key buckets held in a
// go-cache map, so idle keys expire on the janitor instead of growing forever.
type localLimiter struct {
	config Config
	global *rate.Limiter
	keys   *gocache.Cache
}

// NewLocalLimiter creates a new in-memory rate limiter
func NewLocalLimiter(config Config) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rl := &localLimiter{config: config}
	if config.Enabled {
		rl.global = rl.newBucket()
		rl.keys = gocache.New(config.IdleTimeout, config.IdleTimeout)
	}
	return rl, nil
}

func (rl *localLimiter) newBucket() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
}

// Wait blocks until a request can be made according to the rate limit
func (rl *localLimiter) Wait(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}
	return rl.global.Wait(ctx)
}

// TryAcquire attempts to acquire a token without blocking
func (rl *localLimiter) TryAcquire() bool {
	if !rl.config.Enabled {
		return true
	}
	return rl.global.Allow()
}

// TryAcquireForKey attempts to acquire a token for a specific key
func (rl *localLimiter) TryAcquireForKey(key string) bool {
	if !rl.config.Enabled {
		return true
	}
	return rl.bucketFor(key).Allow()
}

// bucketFor returns the bucket for key and pushes its expiry out.
// Add loses to a concurrent creator, in which case the winner's bucket is used.
func (rl *localLimiter) bucketFor(key string) *rate.Limiter {
	if v, found := rl.keys.Get(key); found {
		bucket := v.(*rate.Limiter)
		rl.keys.SetDefault(key, bucket)
		return bucket
	}

	bucket := rl.newBucket()
	if err := rl.keys.Add(key, bucket, gocache.DefaultExpiration); err != nil {
		if v, found := rl.keys.Get(key); found {
			return v.(*rate.Limiter)
		}
	}
	return bucket
}

func (rl *localLimiter) ActiveKeys() int {
	if rl.keys == nil {
		return 0
	}
	return rl.keys.ItemCount()
}
