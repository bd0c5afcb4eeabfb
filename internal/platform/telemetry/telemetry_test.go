package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	e := echo.New()
	e.GET("/metrics", p.PrometheusHandler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

// ---------------------------------------------------------------------------
// Config defaults
// ---------------------------------------------------------------------------

func TestConfig_Defaults(t *testing.T) {
	p := NewProvider(Config{})
	res := p.Resource()
	if res["service"] != "omop-export" {
		t.Errorf("expected default service 'omop-export', got %q", res["service"])
	}
	if res["version"] != "0.0.0" {
		t.Errorf("expected default version '0.0.0', got %q", res["version"])
	}
	if res["environment"] != "development" {
		t.Errorf("expected default environment 'development', got %q", res["environment"])
	}
	if !p.cfg.metricsOn() {
		t.Error("expected metrics enabled by default")
	}
}

func TestConfig_CustomValues(t *testing.T) {
	p := NewProvider(Config{ServiceName: "exporter", ServiceVersion: "1.2.3", Environment: "production"})
	out := scrape(t, p)
	if !strings.Contains(out, `service="exporter"`) {
		t.Errorf("expected const label in exposition, got:\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// Export run metrics
// ---------------------------------------------------------------------------

func TestProvider_RunMetrics(t *testing.T) {
	p := NewProvider(Config{})
	p.RunFinished("nightly", "completed", 90*time.Second)
	p.RunFinished("manual", "failed", time.Second)
	p.RowsExported("measurement", 12)
	p.RowsExported("note", 0)
	p.ArtifactUploaded("measurement", 2048)
	p.WatermarkCommitted("patient", time.Unix(1717243200, 0))
	p.CohortSelected(3)
	p.QueuePolled("empty")

	out := scrape(t, p)
	for _, want := range []string{
		`omop_export_runs_total{environment="development",service="omop-export",status="completed",triggered_by="nightly",version="0.0.0"} 1`,
		`omop_export_runs_total{environment="development",service="omop-export",status="failed",triggered_by="manual",version="0.0.0"} 1`,
		`omop_export_rows_total{environment="development",service="omop-export",table="measurement",version="0.0.0"} 12`,
		`omop_export_artifact_bytes_total{environment="development",service="omop-export",table="measurement",version="0.0.0"} 2048`,
		`omop_export_high_water_mark_seconds{entity="patient",environment="development",service="omop-export",version="0.0.0"} 1.7172432e+09`,
		`omop_export_cohort_patients{environment="development",service="omop-export",version="0.0.0"} 3`,
		`omop_export_queue_claims_total{environment="development",outcome="empty",service="omop-export",version="0.0.0"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s", want)
		}
	}
	if strings.Contains(out, `table="note"`) {
		t.Error("zero row counts should not create a series")
	}
}

func TestProvider_Disabled(t *testing.T) {
	p := NewProvider(Config{MetricsEnabled: BoolPtr(false)})
	p.RunFinished("nightly", "completed", time.Second)
	p.RowsExported("person", 5)

	out := scrape(t, p)
	if strings.Contains(out, "omop_export_runs_total{") || strings.Contains(out, "omop_export_rows_total{") {
		t.Errorf("expected no run series when disabled, got:\n%s", out)
	}
}

// ---------------------------------------------------------------------------
// HTTP middleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	p := NewProvider(Config{})
	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/api/v1/exports/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/api/v1/exports/a", "/api/v1/exports/b", "/api/v1/exports/missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, p)
	ok := `http_server_request_duration_seconds_count{environment="development",method="GET",route="/api/v1/exports/:id",service="omop-export",status_code="200",version="0.0.0"} 2`
	notFound := `http_server_request_duration_seconds_count{environment="development",method="GET",route="/api/v1/exports/:id",service="omop-export",status_code="404",version="0.0.0"} 1`
	if !strings.Contains(out, ok) {
		t.Errorf("missing %s", ok)
	}
	if !strings.Contains(out, notFound) {
		t.Errorf("missing %s", notFound)
	}
	if !strings.Contains(out, `http_server_active_requests{environment="development",service="omop-export",version="0.0.0"} 0`) {
		t.Error("expected active requests to return to zero")
	}
}

func TestRuntimeCollectors(t *testing.T) {
	p := NewProvider(Config{RuntimeCollectors: true})
	if !strings.Contains(scrape(t, p), "go_goroutines") {
		t.Error("expected go runtime metrics when enabled")
	}
}
