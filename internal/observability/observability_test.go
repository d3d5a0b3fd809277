package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/regionscan/regionscan/internal/config"
)

func TestScanIDContextHelpers(t *testing.T) {
	ctx := ContextWithScanID(context.Background(), "scan-1")
	if got := ScanIDFromContext(ctx); got != "scan-1" {
		t.Fatalf("ScanIDFromContext() = %q", got)
	}
	if got := ScanIDFromContext(context.Background()); got != "" {
		t.Fatalf("ScanIDFromContext(empty) = %q", got)
	}
}

func TestNewLoggerHonorsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "regionscanctl"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelWarn, LogJSON: true},
	}
	logger := NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"service":"regionscanctl"`) {
		t.Fatalf("missing service attribute: %s", out)
	}
}

func TestNewLoggerAddsScanIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Service:       config.ServiceConfig{Name: "regionscan-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo},
	}
	logger := NewLogger(cfg, &buf).With(slog.String("component", "test"))

	logger.InfoContext(ContextWithScanID(context.Background(), "scan-42"), "tagged")
	logger.InfoContext(context.Background(), "untagged")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], "scan_id=scan-42") || !strings.Contains(lines[0], "component=test") {
		t.Fatalf("tagged line = %s", lines[0])
	}
	if strings.Contains(lines[1], "scan_id") {
		t.Fatalf("untagged line = %s", lines[1])
	}
}

func TestMetricsHandlerExposesScanCollectors(t *testing.T) {
	ObserveSchemaDiscovery(nil)
	ObservePartitionListing(3)
	PartitionScanOpened()
	ObservePartitionScanClosed(10, 5*time.Millisecond, errors.New("boom"))

	rr := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{
		"regionscan_schema_discoveries_total",
		"regionscan_partition_listings_total",
		"regionscan_partition_scans_total",
		"regionscan_open_partition_scans",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

func TestScanIDMiddlewarePreservesIncomingID(t *testing.T) {
	h := ScanIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := ScanIDFromContext(r.Context()); got != "scan-7" {
			t.Fatalf("ScanIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(scanIDHeader, "scan-7")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(scanIDHeader); got != "scan-7" {
		t.Fatalf("scan id header = %q", got)
	}
}

func TestScanIDMiddlewareGeneratesID(t *testing.T) {
	h := ScanIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ScanIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated scan id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Header().Get(scanIDHeader) == "" {
		t.Fatal("expected X-Scan-ID header")
	}
}

func TestLoggingAndMetricsMiddlewareRecordRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tables/{table}/schema", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	h := ScanIDMiddleware(MetricsMiddleware(LoggingMiddleware(logger)(mux)))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tables/TABLE1/schema", nil))

	if !strings.Contains(buf.String(), `"status":202`) {
		t.Fatalf("log output = %s", buf.String())
	}
	rr := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `route="GET /v1/tables/{table}/schema"`) {
		t.Fatal("metrics output missing route label")
	}
}
