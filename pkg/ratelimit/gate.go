package ratelimit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

var permitsInUse = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "catalog_permits_in_use",
	Help: "Number of concurrency permits currently held",
})

// Gate bounds the number of simultaneously in-flight requests with a fixed
// pool of permits. Holding a permit authorizes exactly one transport call;
// every Acquire must be paired with exactly one Release, on all exit paths.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
}

// NewGate creates a gate with the given permit capacity (>= 1).
func NewGate(maxConcurrent int) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: maxConcurrent,
	}
}

// Capacity returns the size of the permit pool.
func (g *Gate) Capacity() int {
	return g.capacity
}

// Acquire blocks until a permit is free or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	permitsInUse.Inc()
	return nil
}

// Release returns a permit to the pool.
func (g *Gate) Release() {
	g.sem.Release(1)
	permitsInUse.Dec()
}
