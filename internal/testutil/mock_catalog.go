// Package testutil provides testing utilities for the catalog scanner.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CatalogResource mirrors the catalog API resource wire format.
type CatalogResource struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Name          string          `json:"name"`
	Metadata      CatalogMetadata `json:"metadata"`
	SensitiveData bool            `json:"sensitive_data"`
}

// CatalogMetadata is the resource metadata block.
type CatalogMetadata struct {
	Region    string `json:"region"`
	CreatedAt string `json:"created_at"`
}

// GenerateCatalog builds a deterministic fixture catalog of n resources.
// Resource i is sensitive when i is even, so a catalog of 100 holds exactly
// 50 sensitive resources.
func GenerateCatalog(n int) []CatalogResource {
	types := []string{"storage", "compute", "network", "database"}
	regions := []string{"us-east-1", "us-west-2", "eu-west-1"}

	resources := make([]CatalogResource, 0, n)
	for i := 1; i <= n; i++ {
		resources = append(resources, CatalogResource{
			ID:   fmt.Sprintf("res_%d", i),
			Type: types[i%len(types)],
			Name: fmt.Sprintf("resource_%d", i),
			Metadata: CatalogMetadata{
				Region:    regions[i%len(regions)],
				CreatedAt: "2024-01-01",
			},
			SensitiveData: i%2 == 0,
		})
	}
	return resources
}

// failureSpec describes injected failures for one request key.
type failureSpec struct {
	status    int
	remaining int // -1 means fail forever
}

// MockCatalog is a configurable mock catalog API server implementing the
// /health, /resources, and /resources/{id} contract.
type MockCatalog struct {
	server *httptest.Server

	// APIKey is the credential the server accepts.
	APIKey string

	mu            sync.Mutex
	resources     []CatalogResource
	handlers      map[string]http.HandlerFunc
	failures      map[string]*failureSpec
	requestCounts map[string]int
	responseDelay time.Duration

	rateLimitMax    int // 0 disables server-side rate limiting
	rateLimitWindow time.Duration
	history         []time.Time

	inFlight     int
	peakInFlight int
}

// NewMockCatalog starts a mock server over the given catalog.
func NewMockCatalog(resources []CatalogResource) *MockCatalog {
	m := &MockCatalog{
		APIKey:        "valid_api_key",
		resources:     resources,
		handlers:      make(map[string]http.HandlerFunc),
		failures:      make(map[string]*failureSpec),
		requestCounts: make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server base URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetHandler installs a custom handler for an exact path.
func (m *MockCatalog) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponseDelay makes every response take at least d. Useful for widening
// the in-flight window in concurrency tests.
func (m *MockCatalog) SetResponseDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseDelay = d
}

// EnableRateLimit makes the server respond 429 once more than max requests
// arrive within the window, like the real API's 10 requests per 60s limit.
func (m *MockCatalog) EnableRateLimit(max int, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitMax = max
	m.rateLimitWindow = window
	m.history = nil
}

// FailWith injects `times` failures with the given status for a request key
// before normal handling resumes. Keys are exact paths ("/health",
// "/resources/res_1") or page-qualified list keys ("/resources?page=3").
// times < 0 fails forever.
func (m *MockCatalog) FailWith(key string, status, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = &failureSpec{status: status, remaining: times}
}

// RequestCount returns how many requests arrived for a key. List requests
// are counted under both "/resources" and "/resources?page=N".
func (m *MockCatalog) RequestCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCounts[key]
}

// TotalRequests returns the total number of requests served.
func (m *MockCatalog) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCounts["*"]
}

// PeakInFlight returns the highest number of simultaneous requests observed.
func (m *MockCatalog) PeakInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakInFlight
}

// Reset clears counters, injected failures, and rate-limit history.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCounts = make(map[string]int)
	m.failures = make(map[string]*failureSpec)
	m.history = nil
	m.peakInFlight = 0
}

func (m *MockCatalog) handle(w http.ResponseWriter, r *http.Request) {
	keys := requestKeys(r)

	m.mu.Lock()
	m.requestCounts["*"]++
	for _, k := range keys {
		m.requestCounts[k]++
	}

	m.inFlight++
	if m.inFlight > m.peakInFlight {
		m.peakInFlight = m.inFlight
	}

	delay := m.responseDelay
	custom := m.handlers[r.URL.Path]

	var injected *failureSpec
	for _, k := range keys {
		if spec, ok := m.failures[k]; ok && spec.remaining != 0 {
			injected = spec
			break
		}
	}
	if injected != nil && injected.remaining > 0 {
		injected.remaining--
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if injected != nil {
		writeError(w, injected.status, http.StatusText(injected.status))
		return
	}

	if custom != nil {
		custom(w, r)
		return
	}

	switch {
	case r.URL.Path == "/health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	case r.URL.Path == "/resources":
		m.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/resources/"):
		m.handleGet(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// checkAuthAndRate enforces the credential and the server-side rate limit.
// Returns false when the response has already been written.
func (m *MockCatalog) checkAuthAndRate(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("api-key") != m.APIKey {
		writeError(w, http.StatusUnauthorized, "Invalid API key")
		return false
	}

	m.mu.Lock()
	limited := false
	if m.rateLimitMax > 0 {
		now := time.Now()
		kept := m.history[:0]
		for _, t := range m.history {
			if now.Sub(t) < m.rateLimitWindow {
				kept = append(kept, t)
			}
		}
		m.history = kept
		if len(m.history) >= m.rateLimitMax {
			limited = true
		} else {
			m.history = append(m.history, now)
		}
	}
	m.mu.Unlock()

	if limited {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return false
	}
	return true
}

func (m *MockCatalog) handleList(w http.ResponseWriter, r *http.Request) {
	if !m.checkAuthAndRate(w, r) {
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	if page < 1 || limit < 1 || limit > 100 {
		writeError(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	m.mu.Lock()
	total := len(m.resources)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if end > total {
		end = total
	}
	var pageResources []CatalogResource
	if start < total {
		pageResources = append(pageResources, m.resources[start:end]...)
	}
	m.mu.Unlock()

	if page > totalPages {
		writeError(w, http.StatusNotFound, "Page not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resources":   pageResources,
		"page":        page,
		"total_pages": totalPages,
		"total_items": total,
	})
}

func (m *MockCatalog) handleGet(w http.ResponseWriter, r *http.Request) {
	if !m.checkAuthAndRate(w, r) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/resources/")

	m.mu.Lock()
	var found *CatalogResource
	for i := range m.resources {
		if m.resources[i].ID == id {
			found = &m.resources[i]
			break
		}
	}
	m.mu.Unlock()

	if found == nil {
		writeError(w, http.StatusNotFound, "Resource not found")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// requestKeys returns the counter/failure keys a request matches.
func requestKeys(r *http.Request) []string {
	keys := []string{r.URL.Path}
	if r.URL.Path == "/resources" {
		page := queryInt(r, "page", 1)
		keys = append(keys, fmt.Sprintf("/resources?page=%d", page))
	}
	return keys
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
