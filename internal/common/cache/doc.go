// Package cache provides a two-tier read-through cache with TTL and
// partial-data rejection.
//
// A lookup walks three layers:
//
//  1. Fast tier - in-process, either an unbounded TTL map backed by
//     github.com/patrickmn/go-cache or a bounded LRU.
//  2. Durable tier - shared storage (SQLite, PostgreSQL, Redis, Memcached)
//     queried with a freshness threshold. Hits are copied into the fast tier.
//  3. Producer - the caller's function, usually an outbound API call.
//
// Every tier is gated by the caller's completeness predicate: a cached value
// that fails it is treated as absent, and a produced value that fails it is
// returned to the caller but never stored. Producer errors are returned as-is;
// durable tier failures are logged and otherwise ignored.
//
// Concurrent misses on one key can be collapsed into a single producer call
// within a process (Config.Coalesce) and across processes sharing a durable
// tier (Config.Locker).
//
// Usage:
//
//	rt := cache.New(cache.NewLocalTier(10*time.Minute), durable, cache.Config{
//		FastTTL:    24 * time.Hour,
//		DurableTTL: 7 * 24 * time.Hour,
//		Coalesce:   true,
//	})
//	defer rt.Close()
//
//	place, err := cache.Get(ctx, rt, "search:"+query, cache.Options[Place]{
//		Producer: func(ctx context.Context) (Place, error) { return client.Search(ctx, query) },
//		Validate: func(p Place) bool { return p.FormattedAddress != "" },
//	})
package cache
