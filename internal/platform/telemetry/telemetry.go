// Package telemetry exposes Prometheus metrics for the HTTP server and the
// document pipeline. Every provider owns its own registry so tests and
// multiple servers in one process do not collide.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/visitrecon/internal/domain/record"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	Namespace      string
	ServiceVersion string
	Environment    string
	RuntimeMetrics bool // register Go and process collectors
}

func (c *TelemetryConfig) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "visitrecon"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// defaultDurationBuckets are the bucket boundaries (in seconds) for HTTP
// request and document processing durations.
var defaultDurationBuckets = []float64{
	0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0,
}

// defaultSizeBuckets are the bucket boundaries (in bytes) for HTTP bodies.
var defaultSizeBuckets = []float64{
	100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000,
}

// ---------------------------------------------------------------------------
// TelemetryProvider
// ---------------------------------------------------------------------------

// TelemetryProvider records HTTP and pipeline metrics. It satisfies the
// reconciler's Observer and the document service's Recorder.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpDuration     *prometheus.HistogramVec
	httpActive       prometheus.Gauge
	httpRequestSize  prometheus.Histogram
	httpResponseSize prometheus.Histogram

	reconcileInput  *prometheus.CounterVec
	reconcileOutput *prometheus.CounterVec

	documents          *prometheus.CounterVec
	documentPages      prometheus.Histogram
	documentVisits     prometheus.Histogram
	documentDuration   prometheus.Histogram
	extractionFailures prometheus.Counter
}

// NewTelemetryProvider creates a provider with a fresh registry.
func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	ns := cfg.Namespace
	tp := &TelemetryProvider{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: defaultDurationBuckets,
		}, []string{"method", "route", "status"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "http", Name: "active_requests",
			Help: "Number of HTTP requests in flight.",
		}),
		httpRequestSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "http", Name: "request_size_bytes",
			Help:    "Size of HTTP request bodies in bytes.",
			Buckets: defaultSizeBuckets,
		}),
		httpResponseSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "http", Name: "response_size_bytes",
			Help:    "Size of HTTP response bodies in bytes.",
			Buckets: defaultSizeBuckets,
		}),

		reconcileInput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "reconcile", Name: "entries_in_total",
			Help: "Entries submitted to reconciliation, by kind.",
		}, []string{"kind"}),
		reconcileOutput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "reconcile", Name: "entries_out_total",
			Help: "Merged entries produced by reconciliation, by kind.",
		}, []string{"kind"}),

		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "pipeline", Name: "documents_total",
			Help: "Processed documents, by whether any visit needs manual review.",
		}, []string{"review_required"}),
		documentPages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "pipeline", Name: "document_pages",
			Help:    "Pages per processed document.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		documentVisits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "pipeline", Name: "document_visits",
			Help:    "Visits segmented per processed document.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		documentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "pipeline", Name: "document_duration_seconds",
			Help:    "End-to-end document processing time in seconds.",
			Buckets: defaultDurationBuckets,
		}),
		extractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "pipeline", Name: "extraction_failures_total",
			Help: "Visit chunks whose field extraction failed.",
		}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "build_info",
		Help: "Service version and environment.",
	}, []string{"version", "environment"})
	buildInfo.WithLabelValues(cfg.ServiceVersion, cfg.Environment).Set(1)

	tp.registry.MustRegister(
		tp.httpDuration, tp.httpActive, tp.httpRequestSize, tp.httpResponseSize,
		tp.reconcileInput, tp.reconcileOutput,
		tp.documents, tp.documentPages, tp.documentVisits, tp.documentDuration, tp.extractionFailures,
		buildInfo,
	)
	if cfg.RuntimeMetrics {
		tp.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: ns}),
		)
	}
	return tp
}

// Registry returns the provider's registry.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// ---------------------------------------------------------------------------
// Pipeline observers
// ---------------------------------------------------------------------------

func (tp *TelemetryProvider) ObserveReconcile(kind record.Kind, input, output int) {
	tp.reconcileInput.WithLabelValues(string(kind)).Add(float64(input))
	tp.reconcileOutput.WithLabelValues(string(kind)).Add(float64(output))
}

func (tp *TelemetryProvider) ObserveDocument(pages, visits int, reviewRequired bool, elapsed time.Duration) {
	tp.documents.WithLabelValues(strconv.FormatBool(reviewRequired)).Inc()
	tp.documentPages.Observe(float64(pages))
	tp.documentVisits.Observe(float64(visits))
	tp.documentDuration.Observe(elapsed.Seconds())
}

func (tp *TelemetryProvider) ObserveExtractionFailure() {
	tp.extractionFailures.Inc()
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

// MetricsMiddleware returns an Echo middleware that records HTTP server
// metrics labelled by route pattern, never by raw path.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tp.httpActive.Inc()
			defer tp.httpActive.Dec()

			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				// Let echo write the error so the recorded status is final.
				c.Error(err)
			}

			resp := c.Response()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			tp.httpDuration.WithLabelValues(req.Method, route, strconv.Itoa(resp.Status)).
				Observe(time.Since(start).Seconds())

			if req.ContentLength > 0 {
				tp.httpRequestSize.Observe(float64(req.ContentLength))
			}
			if resp.Size > 0 {
				tp.httpResponseSize.Observe(float64(resp.Size))
			}
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
