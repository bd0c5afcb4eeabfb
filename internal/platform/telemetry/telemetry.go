// Package telemetry exposes Prometheus metrics for the export service: HTTP
// server metrics recorded by an echo middleware, and export run metrics
// recorded by the orchestrator and worker.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds the constant labels and switches for the provider. A nil
// MetricsEnabled means enabled. RuntimeCollectors registers the Go runtime and
// process collectors.
type Config struct {
	ServiceName       string
	ServiceVersion    string
	Environment       string
	MetricsEnabled    *bool
	RuntimeCollectors bool
}

func (c *Config) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "omop-export"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper to create a *bool for Config fields.
func BoolPtr(b bool) *bool {
	return &b
}

// defaultDurationBuckets are used for HTTP request duration, in seconds.
var defaultDurationBuckets = []float64{
	0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

// runDurationBuckets cover export runs from seconds to a few hours.
var runDurationBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200,
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider owns a private registry and every collector registered on it.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	httpDuration *prometheus.HistogramVec
	httpActive   prometheus.Gauge

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	rowsExported   *prometheus.CounterVec
	artifactBytes  *prometheus.CounterVec
	watermark      *prometheus.GaugeVec
	queueClaims    *prometheus.CounterVec
	cohortPatients prometheus.Gauge
}

// NewProvider creates the provider and registers its collectors.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
	}

	p := &Provider{
		cfg:      cfg,
		registry: reg,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_server_request_duration_seconds",
			Help:        "Duration of HTTP server requests.",
			Buckets:     defaultDurationBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_server_active_requests",
			Help:        "Number of in-flight HTTP server requests.",
			ConstLabels: constLabels,
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "omop_export_runs_total",
			Help:        "Export runs by trigger source and final status.",
			ConstLabels: constLabels,
		}, []string{"triggered_by", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "omop_export_run_duration_seconds",
			Help:        "Wall time of export runs by final status.",
			Buckets:     runDurationBuckets,
			ConstLabels: constLabels,
		}, []string{"status"}),
		rowsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "omop_export_rows_total",
			Help:        "Rows written to published target tables.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		artifactBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "omop_export_artifact_bytes_total",
			Help:        "Bytes uploaded to the artifact store.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "omop_export_high_water_mark_seconds",
			Help:        "Committed high-water mark per source entity, as a Unix timestamp.",
			ConstLabels: constLabels,
		}, []string{"entity"}),
		queueClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "omop_export_queue_claims_total",
			Help:        "Queue polls by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		cohortPatients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "omop_export_cohort_patients",
			Help:        "Eligible patients in the most recent run.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(
		p.httpDuration, p.httpActive,
		p.runsTotal, p.runDuration, p.rowsExported, p.artifactBytes,
		p.watermark, p.queueClaims, p.cohortPatients,
	)
	if cfg.RuntimeCollectors {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

// Registry returns the provider's registry.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Resource returns the constant labels attached to every metric.
func (p *Provider) Resource() map[string]string {
	return map[string]string{
		"service":     p.cfg.ServiceName,
		"version":     p.cfg.ServiceVersion,
		"environment": p.cfg.Environment,
	}
}

// ---------------------------------------------------------------------------
// Export run metrics
// ---------------------------------------------------------------------------

// RunFinished records one finished run.
func (p *Provider) RunFinished(triggeredBy, status string, elapsed time.Duration) {
	if !p.cfg.metricsOn() {
		return
	}
	p.runsTotal.WithLabelValues(triggeredBy, status).Inc()
	p.runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// RowsExported adds n rows published for table.
func (p *Provider) RowsExported(table string, n int) {
	if !p.cfg.metricsOn() || n <= 0 {
		return
	}
	p.rowsExported.WithLabelValues(table).Add(float64(n))
}

// ArtifactUploaded adds the size of one uploaded artifact.
func (p *Provider) ArtifactUploaded(table string, size int) {
	if !p.cfg.metricsOn() {
		return
	}
	p.artifactBytes.WithLabelValues(table).Add(float64(size))
}

// WatermarkCommitted sets the committed mark for an entity.
func (p *Provider) WatermarkCommitted(entity string, at time.Time) {
	if !p.cfg.metricsOn() {
		return
	}
	p.watermark.WithLabelValues(entity).Set(float64(at.Unix()))
}

// CohortSelected sets the size of the latest eligible cohort.
func (p *Provider) CohortSelected(n int) {
	if !p.cfg.metricsOn() {
		return
	}
	p.cohortPatients.Set(float64(n))
}

// QueuePolled records one queue poll. outcome is claimed, empty, busy or error.
func (p *Provider) QueuePolled(outcome string) {
	if !p.cfg.metricsOn() {
		return
	}
	p.queueClaims.WithLabelValues(outcome).Inc()
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// MetricsMiddleware returns an Echo middleware that records HTTP server metrics.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !p.cfg.metricsOn() {
				return next(c)
			}

			p.httpActive.Inc()
			start := time.Now()
			err := next(c)
			p.httpActive.Dec()

			// Route pattern keeps label cardinality bounded.
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			p.httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
