// Package cache provides a Redis-backed response cache for subgraph queries.
//
// Subgraph endpoints only advance when a new block is indexed, so the same
// pool-overview page is typically requested many times within a few seconds
// (pagination restarts, several viewers on the same protocol). The cache
// stores successful GraphQL responses keyed by endpoint, query text and
// variables.
//
// # Basic Usage
//
//	manager, err := cache.NewManager(redisClient, cache.Options{})
//
//	key := cache.CacheKey{
//		Endpoint:  "https://api.thegraph.com/subgraphs/name/messari/uniswap-v3-ethereum",
//		Query:     query,
//		Variables: map[string]any{"skipAmt": 10},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the endpoint, then:
//		entry = cache.NewEntry(key.Endpoint, resp.Header, body, cache.DefaultTTL, time.Now())
//		_ = manager.Set(ctx, key, entry)
//	}
//
//	// drop everything cached for one endpoint
//	n, err := manager.Purge(ctx, key.Endpoint)
//
// # TTL
//
// The TTL of an entry is taken from the response's Cache-Control max-age or
// Expires header. When neither is present the caller-supplied default applies.
//
// # Metrics
//
//   - subgraph_cache_lookups_total{result} - hit, miss or stale
//   - subgraph_cache_bytes_total{direction} - read and write volume
//   - subgraph_cache_errors_total{operation} - Redis failures
//   - subgraph_cache_purged_entries_total - entries dropped by Purge
package cache
