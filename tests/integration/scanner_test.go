package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloudscan/catalog-scanner/internal/testutil"
	"github.com/cloudscan/catalog-scanner/pkg/client"
	"github.com/cloudscan/catalog-scanner/pkg/scanner"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newScanner(t *testing.T, mock *testutil.MockCatalog, redisClient *redis.Client) *scanner.Scanner {
	t.Helper()

	s, err := scanner.New(scanner.Config{
		Client: client.Config{
			BaseURL:               mock.URL(),
			APIKey:                mock.APIKey,
			MaxConcurrentRequests: 5,
			MaxRequestsPerSecond:  500,
			Retry: client.RetryPolicy{
				MaxAttempts: 5,
				BaseBackoff: 10 * time.Millisecond,
				MaxBackoff:  50 * time.Millisecond,
				Multiplier:  2.0,
			},
		},
		Redis:    redisClient,
		CacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFullScanEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog(testutil.GenerateCatalog(100))
	defer mock.Close()

	s := newScanner(t, mock, redisClient)
	ctx := context.Background()

	if !s.HealthCheck(ctx) {
		t.Fatal("Expected catalog to be healthy")
	}

	report, err := s.SensitiveResources(ctx)
	if err != nil {
		t.Fatalf("SensitiveResources() error: %v", err)
	}

	if report.TotalScanned != 100 {
		t.Errorf("TotalScanned = %d, want 100", report.TotalScanned)
	}
	if len(report.Resources) != 50 {
		t.Errorf("Sensitive count = %d, want 50", len(report.Resources))
	}
	if report.Percentage != 50.0 {
		t.Errorf("Percentage = %g, want 50.0", report.Percentage)
	}
	if got := mock.RequestCount("/resources"); got != 10 {
		t.Errorf("List requests = %d, want 10", got)
	}
}

func TestResourceCacheSkipsTransport(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog(testutil.GenerateCatalog(10))
	defer mock.Close()

	s := newScanner(t, mock, redisClient)
	ctx := context.Background()

	first, err := s.GetResource(ctx, "res_4")
	if err != nil {
		t.Fatalf("First GetResource() error: %v", err)
	}

	second, err := s.GetResource(ctx, "res_4")
	if err != nil {
		t.Fatalf("Second GetResource() error: %v", err)
	}

	if first.ID != second.ID || first.SensitiveData != second.SensitiveData {
		t.Error("Cached resource differs from fetched resource")
	}
	if got := mock.RequestCount("/resources/res_4"); got != 1 {
		t.Errorf("API requests = %d, want 1 (second lookup cached)", got)
	}
}

func TestScanSurvivesFlakyPages(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog(testutil.GenerateCatalog(100))
	defer mock.Close()

	// Each of these pages fails twice and then recovers, staying inside
	// the retry budget.
	mock.FailWith("/resources?page=2", 500, 2)
	mock.FailWith("/resources?page=7", 429, 2)

	s := newScanner(t, mock, redisClient)

	all, err := s.ScanAllResources(context.Background())
	if err != nil {
		t.Fatalf("ScanAllResources() error: %v", err)
	}
	if len(all) != 100 {
		t.Errorf("Scan returned %d resources, want 100 after recovery", len(all))
	}
}
