package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/dealhunter/internal/metrics"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func newTestOpsRouter(checker HealthChecker) http.Handler {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RecordPageFetched("US")

	return NewOpsRouter(&OpsDeps{
		HealthChecker: checker,
		Gatherer:      reg,
		Logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
}

func TestHealthEndpoint_Healthy(t *testing.T) {
	router := newTestOpsRouter(&mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestHealthEndpoint_DatabaseDown(t *testing.T) {
	router := newTestOpsRouter(&mockHealthChecker{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "unavailable" {
		t.Errorf("status = %q, want unavailable", resp.Status)
	}
}

func TestMetricsEndpoint_ServesCollectedMetrics(t *testing.T) {
	router := newTestOpsRouter(&mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dealhunter_pages_fetched_total") {
		t.Error("expected metrics output to contain dealhunter_pages_fetched_total")
	}
}

func TestOpsRouter_UnknownPathReturns404(t *testing.T) {
	router := newTestOpsRouter(&mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
