package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cloudscan/catalog-scanner/pkg/client"
	"github.com/cloudscan/catalog-scanner/pkg/logging"
	"github.com/cloudscan/catalog-scanner/pkg/scanner"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})

	// Configuration from environment
	baseURL := getEnv("CATALOG_URL", "http://localhost:8000")
	apiKey := getEnv("CATALOG_API_KEY", "valid_api_key")
	maxConcurrent := getEnvInt("MAX_CONCURRENT", 5)
	maxRPS := getEnvFloat("MAX_RPS", 0.8)
	scanTimeout := time.Duration(getEnvInt("SCAN_TIMEOUT_SECONDS", 600)) * time.Second

	cfg := scanner.Config{
		Client: client.Config{
			BaseURL:               baseURL,
			APIKey:                apiKey,
			MaxConcurrentRequests: maxConcurrent,
			MaxRequestsPerSecond:  maxRPS,
			Retry:                 client.DefaultRetryPolicy(),
		},
	}

	// Optional resource cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis_url", redisURL).Msg("Resource cache enabled")
		cfg.Redis = redisClient
		defer redisClient.Close()
	}

	// Optional metrics endpoint
	if metricsPort := os.Getenv("METRICS_PORT"); metricsPort != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := ":" + metricsPort
			logger.Info().Str("addr", addr).Msg("Serving metrics")
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	s, err := scanner.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create scanner")
		return 1
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	if !s.HealthCheck(ctx) {
		logger.Error().Str("catalog_url", baseURL).Msg("Catalog API is not healthy")
		return 1
	}

	report, err := s.SensitiveResources(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Scan failed")
		return 1
	}

	logger.Info().
		Int("sensitive_count", len(report.Resources)).
		Int("total_scanned", report.TotalScanned).
		Float64("sensitive_percentage", report.Percentage).
		Msg("Scan finished")

	// The report goes to stdout so logs on stderr stay separable.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error().Err(err).Msg("Failed to write report")
		return 1
	}

	return 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
