// Package metrics exposes the Prometheus registry shared by the pipeline.
// Metrics are declared in the packages that record them (client, cache,
// ratelimit, pagination, overlay, overview) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all pipeline metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the registered metrics.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - subgraph_requests_total{scope, status} (Counter): requests by endpoint scope and HTTP status
//   - subgraph_request_duration_seconds{scope} (Histogram): request duration
//   - subgraph_errors_total{class} (Counter): errors by class (client, server, rate_limit, network, query)
//   - subgraph_retries_total{error_class} (Counter): retry attempts
//   - subgraph_retry_backoff_seconds{error_class} (Histogram): backoff durations
//   - subgraph_retry_exhausted_total{error_class} (Counter): requests that used up their retries
//
// Error Budget Metrics (pkg/ratelimit):
//   - subgraph_errors_remaining{scope} (Gauge): errors left in the current window
//   - subgraph_rate_limit_blocks_total (Counter): requests blocked by an exhausted budget
//   - subgraph_rate_limit_throttles_total (Counter): requests delayed by a low budget
//
// Cache Metrics (pkg/cache):
//   - subgraph_cache_lookups_total{result} (Counter): hit, miss, stale
//   - subgraph_cache_bytes_total{direction} (Counter): read, write
//   - subgraph_cache_errors_total{operation} (Counter)
//   - subgraph_cache_purged_entries_total (Counter)
//
// Pipeline Metrics (pkg/pagination, pkg/overlay, pkg/overview):
//   - subgraph_pages_fetched_total{outcome} (Counter): full, short or error pages
//   - subgraph_page_retries_total (Counter): page retries at the same skip
//   - subgraph_page_fetch_duration_seconds (Histogram)
//   - subgraph_overlay_queries_total{kind, outcome} (Counter): token and snapshot overlays
//   - subgraph_overview_loads_total{outcome} (Counter): ok, banner, cancelled
//   - subgraph_overview_load_duration_seconds (Histogram)
//   - subgraph_overview_pools (Histogram): pools per load
//
// Example Prometheus Queries:
//
//	# Cache hit rate
//	sum(rate(subgraph_cache_lookups_total{result="hit"}[5m])) /
//	sum(rate(subgraph_cache_lookups_total[5m]))
//
//	# Share of loads showing a banner
//	rate(subgraph_overview_loads_total{outcome="banner"}[5m]) / rate(subgraph_overview_loads_total[5m])
//
//	# P95 overview latency
//	histogram_quantile(0.95, rate(subgraph_overview_load_duration_seconds_bucket[5m]))
