// Package ratelimit provides token bucket rate limiting on golang.org/x/time/rate.
//
// The places client waits on the global bucket before every outbound request:
//
//	limiter, err := ratelimit.NewLocalLimiter(ratelimit.Config{RequestsPerSecond: 10, Enabled: true})
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
//
// The HTTP layer uses per-key buckets, keyed by client address, to shed
// abusive callers before they reach the cache.
package ratelimit

import (
	"context"
)

// Limiter defines the rate limiting interface
type Limiter interface {
	// Wait blocks until the global bucket has a token or ctx is done
	Wait(ctx context.Context) error
	TryAcquire() bool

	// TryAcquireForKey spends a token from the bucket owned by key
	TryAcquireForKey(key string) bool

	// ActiveKeys is the number of per-key buckets currently held
	ActiveKeys() int
}
