package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_retry_backoff_seconds",
		Help:    "Backoff duration before retries by error kind",
		Buckets: []float64{0.5, 1, 2, 4, 8, 10},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_retry_exhausted_total",
		Help: "Total number of requests that used their whole retry budget",
	}, []string{"kind"})
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// back off first. The policy never sleeps; scheduling belongs to the caller.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the initial request.
	MaxAttempts int

	// BaseBackoff is the delay before the first retry.
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// Multiplier is applied to the delay after each retry.
	Multiplier float64
}

// DefaultRetryPolicy returns the standard policy: 5 attempts with backoff
// delays of 2s, 4s, 8s, 10s (doubling from 2s, capped at 10s).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  10 * time.Second,
		Multiplier:  2.0,
	}
}

// Delay returns the backoff to wait after failed attempt n (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Decide evaluates the outcome of attempt n (1-based). It returns the backoff
// to wait before the next attempt and whether a retry should happen at all.
// Terminal errors and an exhausted attempt budget both yield retry == false;
// the caller distinguishes them via Retryable(err).
func (p RetryPolicy) Decide(err error, attempt int) (delay time.Duration, retry bool) {
	if err == nil {
		return 0, false
	}
	if !Retryable(err) {
		return 0, false
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return p.Delay(attempt), true
}
