// Package metrics provides the Prometheus registry reference for the
// catalog scanner. Metrics are defined in their owning packages (client,
// ratelimit, cache, scanner) to keep them next to the code that drives them;
// this package documents what is available.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the scanner.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Pacing Metrics (pkg/ratelimit):
//   - catalog_dispatches_total (Counter): Dispatch slots granted
//   - catalog_dispatch_wait_seconds (Histogram): Time spent waiting for a slot
//   - catalog_permits_in_use (Gauge): Concurrency permits currently held
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - catalog_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - catalog_errors_total{kind} (Counter): Errors by kind (auth, not_found, client, rate_limited, server, transport)
//
// Retry Metrics (pkg/client):
//   - catalog_retries_total{kind} (Counter): Retry attempts by error kind
//   - catalog_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - catalog_retry_exhausted_total{kind} (Counter): Requests that used their whole retry budget
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total (Counter): Resource cache hits
//   - catalog_cache_misses_total (Counter): Resource cache misses
//   - catalog_cache_errors_total{operation} (Counter): Cache operation errors
//
// Scan Metrics (pkg/scanner):
//   - catalog_scan_pages_fetched_total (Counter): Pages fetched successfully
//   - catalog_scan_page_failures_total (Counter): Pages excluded after permanent failure
//   - catalog_scan_duration_seconds (Histogram): Full scan duration
//
// Example Prometheus Queries:
//
//   # Retry Rate
//   sum(rate(catalog_retries_total[5m])) / sum(rate(catalog_requests_total[5m]))
//
//   # Scan Page Failure Share
//   rate(catalog_scan_page_failures_total[5m]) /
//   (rate(catalog_scan_pages_fetched_total[5m]) + rate(catalog_scan_page_failures_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
//
//   # Cache Hit Rate
//   rate(catalog_cache_hits_total[5m]) /
//   (rate(catalog_cache_hits_total[5m]) + rate(catalog_cache_misses_total[5m]))
