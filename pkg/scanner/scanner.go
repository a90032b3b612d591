// Package scanner implements the catalog scan orchestrator: health checks,
// single-resource and single-page fetches, and the batched full scan built
// on top of the resilient request client.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cloudscan/catalog-scanner/pkg/cache"
	"github.com/cloudscan/catalog-scanner/pkg/client"
)

// Prometheus metrics for scan operations.
var (
	scanPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_scan_pages_fetched_total",
		Help: "Total pages fetched successfully during full scans",
	})

	scanPageFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_scan_page_failures_total",
		Help: "Total pages that failed permanently during full scans",
	})

	scanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_scan_duration_seconds",
		Help:    "Full scan duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)

// defaultPageLimit is the page size used by full scans.
const defaultPageLimit = 10

// maxBatchPages caps how many page fetches one scan batch issues at once.
const maxBatchPages = 3

// Config holds the scanner configuration.
type Config struct {
	// Client configures the underlying catalog API client.
	Client client.Config

	// Redis optionally backs the single-resource lookup cache. Nil disables
	// caching and every GetResource goes to the API.
	Redis *redis.Client

	// CacheTTL is how long cached resources stay valid (default 5 minutes).
	CacheTTL time.Duration
}

// Scanner orchestrates catalog scans. It owns the request client and, with
// it, the transport session; Close releases the session exactly once and a
// later operation re-initializes it transparently.
type Scanner struct {
	client *client.Client
	cache  *cache.Manager
	logger zerolog.Logger
}

// New creates a scanner. The client configuration is validated by client.New.
func New(cfg Config) (*Scanner, error) {
	c, err := client.New(cfg.Client)
	if err != nil {
		return nil, fmt.Errorf("create catalog client: %w", err)
	}

	var mgr *cache.Manager
	if cfg.Redis != nil {
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		mgr = cache.NewManager(cfg.Redis, ttl)
	}

	return &Scanner{
		client: c,
		cache:  mgr,
		logger: log.With().Str("component", "catalog-scanner").Logger(),
	}, nil
}

// Close releases the scanner's transport session.
func (s *Scanner) Close() error {
	return s.client.Close()
}

// Client returns the underlying request client (for testing).
func (s *Scanner) Client() *client.Client {
	return s.client
}

// HealthCheck reports whether the catalog API answers its liveness endpoint.
// All failures are swallowed and reported as unhealthy.
func (s *Scanner) HealthCheck(ctx context.Context) bool {
	body, err := s.client.Get(ctx, "/health", nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Health check failed")
		return false
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		s.logger.Error().Err(err).Msg("Health check returned malformed body")
		return false
	}

	healthy := health.Status == "healthy"
	s.logger.Info().Bool("healthy", healthy).Msg("Health check result")
	return healthy
}

// ListResources fetches one page of the resource listing. Errors from the
// request client propagate untransformed: terminal errors immediately,
// retryable ones only after the client's retry budget is spent.
func (s *Scanner) ListResources(ctx context.Context, page, limit int) (*ResourcePage, error) {
	s.logger.Debug().Int("page", page).Int("limit", limit).Msg("Listing resources")

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	body, err := s.client.Get(ctx, "/resources", params)
	if err != nil {
		return nil, err
	}

	var result ResourcePage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode resource page: %w", err)
	}
	return &result, nil
}

// GetResource fetches a single resource by id, consulting the cache first
// when one is configured. Cache failures degrade to a direct fetch.
func (s *Scanner) GetResource(ctx context.Context, id string) (*Resource, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, id)
		switch {
		case err == nil:
			var res Resource
			if jsonErr := json.Unmarshal(data, &res); jsonErr == nil {
				s.logger.Debug().Str("resource_id", id).Msg("Resource served from cache")
				return &res, nil
			}
			// Corrupted entry: drop it and fall through to the API.
			_ = s.cache.Delete(ctx, id)
		case err != cache.ErrCacheMiss:
			s.logger.Warn().Err(err).Str("resource_id", id).Msg("Cache get error")
		}
	}

	body, err := s.client.Get(ctx, "/resources/"+id, nil)
	if err != nil {
		return nil, err
	}

	var res Resource
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, id, body); err != nil {
			s.logger.Warn().Err(err).Str("resource_id", id).Msg("Failed to cache resource")
		}
	}
	return &res, nil
}

// ScanAllResources retrieves every page of the catalog and aggregates the
// resources. Page 1 is fetched alone to learn the page count; the remaining
// pages are fetched in concurrent batches of min(3, maxConcurrentRequests),
// each batch awaited as a unit. A page that still fails after the client's
// retry budget contributes nothing and does not abort the scan, so the
// result is best-effort. Ordering across pages is not guaranteed; ordering
// within each page is preserved.
func (s *Scanner) ScanAllResources(ctx context.Context) ([]Resource, error) {
	start := time.Now()
	defer func() {
		scanDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	s.logger.Info().Msg("Starting full scan")

	first, err := s.ListResources(ctx, 1, defaultPageLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	scanPagesFetchedTotal.Inc()

	all := append([]Resource{}, first.Resources...)
	totalPages := first.TotalPages

	if totalPages <= 1 {
		s.logger.Info().
			Int("total_resources", len(all)).
			Int("total_pages", totalPages).
			Dur("duration", time.Since(start)).
			Msg("Scan completed (single page)")
		return all, nil
	}

	batchSize := maxBatchPages
	if c := s.client.Config().MaxConcurrentRequests; c < batchSize {
		batchSize = c
	}

	for batchStart := 2; batchStart <= totalPages; batchStart += batchSize {
		// A cancelled scan never issues the batches still pending; pages
		// already in flight finish naturally inside the batch wait.
		if ctx.Err() != nil {
			s.logger.Warn().
				Int("next_page", batchStart).
				Msg("Scan aborted before batch start")
			return all, ctx.Err()
		}

		batchEnd := batchStart + batchSize - 1
		if batchEnd > totalPages {
			batchEnd = totalPages
		}

		s.logger.Info().
			Int("first_page", batchStart).
			Int("last_page", batchEnd).
			Msg("Fetching page batch")

		results := make([][]Resource, batchEnd-batchStart+1)
		var wg sync.WaitGroup
		for page := batchStart; page <= batchEnd; page++ {
			wg.Add(1)
			go func(idx, page int) {
				defer wg.Done()
				result, err := s.ListResources(ctx, page, defaultPageLimit)
				if err != nil {
					scanPageFailuresTotal.Inc()
					s.logger.Error().
						Err(err).
						Int("page", page).
						Msg("Page fetch failed, excluding from scan")
					return
				}
				scanPagesFetchedTotal.Inc()
				results[idx] = result.Resources
			}(page-batchStart, page)
		}
		wg.Wait()

		for _, pageResources := range results {
			all = append(all, pageResources...)
		}

		s.logger.Debug().
			Int("collected", len(all)).
			Int("total_pages", totalPages).
			Msg("Scan progress")
	}

	s.logger.Info().
		Int("total_resources", len(all)).
		Int("total_pages", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Scan completed")

	return all, nil
}

// SensitiveResources performs a full scan and filters it to resources whose
// sensitive flag is set, reporting what share of the catalog they make up.
func (s *Scanner) SensitiveResources(ctx context.Context) (*SensitiveReport, error) {
	s.logger.Info().Msg("Scanning for sensitive resources")

	all, err := s.ScanAllResources(ctx)
	if err != nil {
		return nil, err
	}

	sensitive := make([]Resource, 0)
	for _, res := range all {
		if res.SensitiveData {
			sensitive = append(sensitive, res)
		}
	}

	report := &SensitiveReport{
		Resources:    sensitive,
		TotalScanned: len(all),
		Percentage:   sensitivePercentage(len(sensitive), len(all)),
	}

	s.logger.Info().
		Int("sensitive_count", len(sensitive)).
		Int("total_scanned", len(all)).
		Float64("sensitive_percentage", report.Percentage).
		Msg("Sensitive scan completed")

	return report, nil
}

// sensitivePercentage returns 100*sensitive/total rounded to one decimal
// place, or 0 for an empty scan.
func sensitivePercentage(sensitive, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(sensitive)/float64(total)*1000) / 10
}
