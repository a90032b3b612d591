package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates the requested resource is not cached.
var ErrCacheMiss = errors.New("cache miss")

// keyPrefix namespaces scanner entries in a shared redis instance.
const keyPrefix = "catalog:resource:"

// Manager handles resource caching with a redis backend. Entries expire via
// redis key TTL.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager. ttl must be > 0.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		panic("cache ttl must be positive")
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// TTL returns the entry lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get retrieves the cached body for a resource id.
// Returns ErrCacheMiss if the id is not cached or the entry expired.
func (m *Manager) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := m.redis.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	CacheHits.Inc()
	return data, nil
}

// Set stores the body for a resource id with the configured TTL.
func (m *Manager) Set(ctx context.Context, id string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("cache entry cannot be empty")
	}

	if err := m.redis.Set(ctx, keyPrefix+id, data, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a cached resource.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.redis.Del(ctx, keyPrefix+id).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
