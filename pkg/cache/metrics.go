package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_cache_lookups_total",
		Help: "Response cache lookups by result (hit, miss, stale)",
	}, []string{"result"})

	cacheBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_cache_bytes_total",
		Help: "Bytes read from and written to the response cache",
	}, []string{"direction"})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_cache_errors_total",
		Help: "Response cache errors by operation (get, set, delete, purge)",
	}, []string{"operation"})

	cachePurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subgraph_cache_purged_entries_total",
		Help: "Entries removed by endpoint purges",
	})
)
