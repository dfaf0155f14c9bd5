package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"places-cache/internal/common/logging"
)

// Config holds read-through cache configuration
type Config struct {
	// FastTTL is the default freshness window of the fast tier
	FastTTL time.Duration `json:"fast_ttl"`
	// DurableTTL is the default freshness window of the durable tier
	DurableTTL time.Duration `json:"durable_ttl"`
	// Coalesce collapses concurrent misses on the same key into one producer call
	Coalesce bool `json:"coalesce"`
	// Now is the clock used for freshness checks; time.Now when nil
	Now func() time.Time `json:"-"`
	// Logger receives durable tier failures; the global logger when nil
	Logger logging.Logger `json:"-"`
	// Metrics is optional
	Metrics *Metrics `json:"-"`
	// Locker serializes producer calls for a key across processes sharing the
	// durable tier. Optional; ignored without a durable tier.
	Locker Locker `json:"-"`
}

// Locker acquires a lock named by key and returns the func that releases it
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// DefaultConfig returns the detail-lookup defaults: 24h fast, 7 days durable
func DefaultConfig() Config {
	return Config{
		FastTTL:    24 * time.Hour,
		DurableTTL: 7 * 24 * time.Hour,
	}
}

// Options describes a single lookup.
type Options[V any] struct {
	// Producer computes the value on a miss. Required.
	Producer func(ctx context.Context) (V, error)
	// Validate reports whether a value is complete enough to cache and serve
	// from cache. nil accepts every value.
	Validate func(V) bool
	// FastTTL and DurableTTL override the cache defaults when positive.
	FastTTL    time.Duration
	DurableTTL time.Duration
}

// ErrNoProducer is returned when a lookup misses every tier and no producer was given.
var ErrNoProducer = errors.New("cache: no producer configured for lookup")

// ErrTypeMismatch is returned when a coalesced lookup joins an in-flight
// call for the same key that produces a different value type.
var ErrTypeMismatch = errors.New("cache: coalesced lookup produced a different type")

// ReadThrough is a two-tier read-through cache. It is safe for concurrent use.
type ReadThrough struct {
	fast    FastTier
	durable DurableTier
	config  Config
	logger  logging.Logger
	group   singleflight.Group
}

// New creates a read-through cache. durable may be nil, in which case the
// cache runs fast-tier-only.
func New(fast FastTier, durable DurableTier, config Config) *ReadThrough {
	defaults := DefaultConfig()
	if config.FastTTL <= 0 {
		config.FastTTL = defaults.FastTTL
	}
	if config.DurableTTL <= 0 {
		config.DurableTTL = defaults.DurableTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if fast == nil {
		fast = NewLocalTier(0)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	fields := []logging.Field{{Key: "component", Value: "read_through_cache"}}
	if durable != nil {
		fields = append(fields, logging.Field{Key: "durable_tier", Value: durable.Name()})
	}

	return &ReadThrough{
		fast:    fast,
		durable: durable,
		config:  config,
		logger:  logger.WithFields(fields...),
	}
}

// Close releases the fast tier. The durable tier is owned by the caller.
func (rt *ReadThrough) Close() error {
	return rt.fast.Close()
}

// FastLen returns the number of records held by the fast tier
func (rt *ReadThrough) FastLen() int {
	return rt.fast.Len()
}

// Get returns the value for key, reading through the fast tier, the durable
// tier and finally the producer. See the package documentation for the
// exact rules.
func Get[V any](ctx context.Context, rt *ReadThrough, key string, opts Options[V]) (V, error) {
	key = NormalizeKey(key)
	fastTTL, durableTTL := rt.ttls(opts.FastTTL, opts.DurableTTL)

	if v, ok := lookupFast(rt, key, fastTTL, durableTTL, opts.Validate); ok {
		return v, nil
	}

	if v, ok := lookupDurable(ctx, rt, key, durableTTL, fastTTL, opts.Validate); ok {
		return v, nil
	}

	if opts.Producer == nil {
		var zero V
		return zero, ErrNoProducer
	}

	if !rt.config.Coalesce {
		return produceLocked(ctx, rt, key, fastTTL, durableTTL, opts)
	}

	// The shared call outlives any single caller: a waiter that goes away
	// must not cancel the producer for the others. Each caller still stops
	// waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := rt.group.DoChan(key, func() (interface{}, error) {
		return produceLocked(shared, rt, key, fastTTL, durableTTL, opts)
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Val == nil {
			return zero, res.Err
		}
		v, ok := res.Val.(V)
		if !ok {
			return zero, fmt.Errorf("%w: key %q holds %T", ErrTypeMismatch, key, res.Val)
		}
		return v, res.Err
	}
}

func (rt *ReadThrough) ttls(fastTTL, durableTTL time.Duration) (time.Duration, time.Duration) {
	if fastTTL <= 0 {
		fastTTL = rt.config.FastTTL
	}
	if durableTTL <= 0 {
		durableTTL = rt.config.DurableTTL
	}
	return fastTTL, durableTTL
}

// lookupFast serves a record only while it is inside the fast window and its
// origin is no older than the longer of the two TTLs, so a warmed record can
// not outlive the durable window it was read under.
func lookupFast[V any](rt *ReadThrough, key string, fastTTL, durableTTL time.Duration, validate func(V) bool) (V, bool) {
	var zero V

	record, found := rt.fast.Get(key)
	if !found {
		rt.config.Metrics.miss(tierFast)
		return zero, false
	}

	now := rt.config.Now()
	originTTL := fastTTL
	if durableTTL > originTTL {
		originTTL = durableTTL
	}
	if now.Sub(record.CachedAt) > fastTTL || !record.Entry.FreshAt(now, originTTL) {
		rt.config.Metrics.reject(tierFast, "stale")
		return zero, false
	}

	v, ok := decodeValid(rt, tierFast, record.Entry, validate)
	if !ok {
		return zero, false
	}

	rt.config.Metrics.hit(tierFast)
	return v, true
}

func lookupDurable[V any](ctx context.Context, rt *ReadThrough, key string, durableTTL, fastTTL time.Duration, validate func(V) bool) (V, bool) {
	var zero V
	if rt.durable == nil {
		return zero, false
	}

	now := rt.config.Now()
	entry, err := rt.durable.Get(ctx, key, now.Add(-durableTTL))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			rt.config.Metrics.miss(tierDurable)
		} else {
			rt.config.Metrics.durableError("read")
			rt.logger.WithContext(ctx).Warn("Durable tier read failed, treating as miss",
				logging.Field{Key: "key", Value: key},
				logging.Err(err),
			)
		}
		return zero, false
	}
	if entry == nil || !entry.FreshAt(now, durableTTL) {
		rt.config.Metrics.reject(tierDurable, "stale")
		return zero, false
	}

	v, ok := decodeValid(rt, tierDurable, *entry, validate)
	if !ok {
		return zero, false
	}

	entry.Key = key
	rt.fast.Set(key, Record{Entry: *entry, CachedAt: now}, fastTTL)
	rt.config.Metrics.hit(tierDurable)
	return v, true
}

// produceLocked holds the distributed lock for key around the producer call.
// Another process may have filled the durable tier while we waited, so it
// is read again once the lock is held. A lock failure falls back to an
// unlocked producer call.
func produceLocked[V any](ctx context.Context, rt *ReadThrough, key string, fastTTL, durableTTL time.Duration, opts Options[V]) (V, error) {
	if rt.config.Locker == nil || rt.durable == nil {
		return produce(ctx, rt, key, fastTTL, durableTTL, opts)
	}

	unlock, err := rt.config.Locker.Lock(ctx, key)
	if err != nil {
		rt.logger.WithContext(ctx).Warn("Could not lock key, calling producer unlocked",
			logging.Field{Key: "key", Value: key},
			logging.Err(err),
		)
		return produce(ctx, rt, key, fastTTL, durableTTL, opts)
	}
	defer unlock()

	if v, ok := lookupDurable(ctx, rt, key, durableTTL, fastTTL, opts.Validate); ok {
		return v, nil
	}
	return produce(ctx, rt, key, fastTTL, durableTTL, opts)
}

func produce[V any](ctx context.Context, rt *ReadThrough, key string, fastTTL, durableTTL time.Duration, opts Options[V]) (V, error) {
	v, err := opts.Producer(ctx)
	if err != nil {
		rt.config.Metrics.producerCall("error")
		return v, err
	}

	if opts.Validate != nil && !opts.Validate(v) {
		rt.config.Metrics.producerCall("incomplete")
		rt.logger.WithContext(ctx).Debug("Produced value is incomplete, not caching",
			logging.Field{Key: "key", Value: key},
		)
		return v, nil
	}
	rt.config.Metrics.producerCall("ok")

	data, err := json.Marshal(v)
	if err != nil {
		rt.logger.WithContext(ctx).Warn("Produced value is not serializable, not caching",
			logging.Field{Key: "key", Value: key},
			logging.Err(err),
		)
		return v, nil
	}

	now := rt.config.Now()
	entry := Entry{Key: key, Value: data, StoredAt: now}
	rt.fast.Set(key, Record{Entry: entry, CachedAt: now}, fastTTL)

	if rt.durable != nil {
		if err := rt.durable.Upsert(ctx, entry, durableTTL); err != nil {
			rt.config.Metrics.durableError("write")
			rt.logger.WithContext(ctx).Warn("Durable tier write failed, continuing with fresh value",
				logging.Field{Key: "key", Value: key},
				logging.Err(err),
			)
		}
	}

	return v, nil
}

func decodeValid[V any](rt *ReadThrough, tier string, entry Entry, validate func(V) bool) (V, bool) {
	var v V
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		rt.config.Metrics.reject(tier, "undecodable")
		rt.logger.Debug("Cached entry is not decodable, ignoring",
			logging.Field{Key: "key", Value: entry.Key},
			logging.Field{Key: "tier", Value: tier},
			logging.Err(err),
		)
		var zero V
		return zero, false
	}
	if validate != nil && !validate(v) {
		rt.config.Metrics.reject(tier, "incomplete")
		var zero V
		return zero, false
	}
	return v, true
}
