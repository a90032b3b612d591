// Package ratelimit implements client-side request pacing and concurrency
// limiting for the catalog API. The Limiter spaces out request dispatches so
// the client never exceeds the configured requests-per-second budget; the
// Gate caps how many requests are in flight at once.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for dispatch pacing.
var (
	dispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_dispatches_total",
		Help: "Total request dispatch slots granted by the rate limiter",
	})

	dispatchWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_dispatch_wait_seconds",
		Help:    "Time callers spent waiting for a dispatch slot",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// Limiter enforces a minimum interval between successive request dispatches.
//
// The interval is derived from the configured requests-per-second budget
// (minInterval = 1/maxRPS) and applies globally across all callers of one
// Limiter instance. The grant timestamp is recorded when the slot is handed
// out, not when the request completes, so the limiter paces dispatch rate.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastGrant   time.Time
	logger      zerolog.Logger
}

// NewLimiter creates a limiter for the given requests-per-second budget.
// maxRPS must be > 0; values like 0.8 mean one dispatch every 1.25 seconds.
func NewLimiter(maxRPS float64, logger zerolog.Logger) *Limiter {
	return &Limiter{
		minInterval: time.Duration(float64(time.Second) / maxRPS),
		logger:      logger,
	}
}

// MinInterval returns the enforced spacing between dispatches.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Wait blocks until a dispatch slot is available, then stamps the grant time
// and returns. Concurrent callers queue on the internal mutex and are granted
// slots one at a time, each respecting the interval from the previous grant.
// The mutex is held across the sleep so check-and-update is a single atomic
// step. If ctx is cancelled while waiting, Wait returns ctx.Err() without
// consuming the slot.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastGrant.IsZero() {
		if wait := l.minInterval - time.Since(l.lastGrant); wait > 0 {
			l.logger.Debug().
				Dur("wait", wait).
				Msg("Pacing dispatch")

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	l.lastGrant = time.Now()

	dispatchesTotal.Inc()
	dispatchWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}
