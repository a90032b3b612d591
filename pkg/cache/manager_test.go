package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a client against a local Redis, skipping when none
// is available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	rc := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := rc.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		rc.FlushDB(context.Background())
		rc.Close()
	})
	return rc
}

func TestNewManager_Validation(t *testing.T) {
	rc := setupTestRedis(t)

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for non-positive TTL")
		}
	}()
	NewManager(rc, 0)
}

func TestNewManager_NilClient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func TestManager_SetAndGet(t *testing.T) {
	rc := setupTestRedis(t)
	m := NewManager(rc, time.Minute)

	ctx := context.Background()
	payload := []byte(`{"id":"res_1","name":"resource_1"}`)

	if err := m.Set(ctx, "res_1", payload); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := m.Get(ctx, "res_1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Get() = %q, want %q", got, payload)
	}
}

func TestManager_GetMiss(t *testing.T) {
	rc := setupTestRedis(t)
	m := NewManager(rc, time.Minute)

	_, err := m.Get(context.Background(), "unknown_id")
	if err != ErrCacheMiss {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_SetEmpty(t *testing.T) {
	rc := setupTestRedis(t)
	m := NewManager(rc, time.Minute)

	if err := m.Set(context.Background(), "res_1", nil); err == nil {
		t.Error("Expected error for empty cache entry")
	}
}

func TestManager_Delete(t *testing.T) {
	rc := setupTestRedis(t)
	m := NewManager(rc, time.Minute)

	ctx := context.Background()
	if err := m.Set(ctx, "res_1", []byte(`{"id":"res_1"}`)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := m.Delete(ctx, "res_1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, err := m.Get(ctx, "res_1"); err != ErrCacheMiss {
		t.Errorf("Get() after delete error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Expiry(t *testing.T) {
	rc := setupTestRedis(t)
	m := NewManager(rc, 100*time.Millisecond)

	ctx := context.Background()
	if err := m.Set(ctx, "res_1", []byte(`{"id":"res_1"}`)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	if _, err := m.Get(ctx, "res_1"); err != nil {
		t.Fatalf("Get() before expiry error: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := m.Get(ctx, "res_1"); err != ErrCacheMiss {
		t.Errorf("Get() after expiry error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_TTL(t *testing.T) {
	rc := setupTestRedis(t)
	m := NewManager(rc, 5*time.Minute)

	if got := m.TTL(); got != 5*time.Minute {
		t.Errorf("TTL() = %v, want 5m", got)
	}
}
