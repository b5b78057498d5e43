package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the ingestion pipeline, the
// saga orchestrator, the event bus, and the scheduled jobs.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	filesIngestedTotal   *prometheus.CounterVec
	studentsLoadedTotal  prometheus.Counter
	ingestDuration       prometheus.Histogram
	sagasStartedTotal    *prometheus.CounterVec
	sagasCompletedTotal  *prometheus.CounterVec
	sagasFailedTotal     *prometheus.CounterVec
	eventsPublishedTotal *prometheus.CounterVec
	eventsDroppedTotal   *prometheus.CounterVec
	publishRetriesTotal  prometheus.Counter
	jobRunsTotal         *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pen_batch_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		filesIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "files_ingested_total",
				Help:      "Total number of submission files ingested by resulting batch status.",
			},
			[]string{"status"},
		),
		studentsLoadedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "students_loaded_total",
				Help:      "Total number of batch student rows loaded from accepted files.",
			},
		),
		ingestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "pen_batch_engine",
				Name:      "ingest_duration_seconds",
				Help:      "Per-file ingestion duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		sagasStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "sagas_started_total",
				Help:      "Total number of sagas started by saga type.",
			},
			[]string{"sagaType"},
		),
		sagasCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "sagas_completed_total",
				Help:      "Total number of sagas reaching COMPLETED by saga type.",
			},
			[]string{"sagaType"},
		),
		sagasFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "sagas_failed_total",
				Help:      "Total number of sagas reaching FAILED by saga type.",
			},
			[]string{"sagaType"},
		),
		eventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "events_published_total",
				Help:      "Total number of envelopes published by topic.",
			},
			[]string{"topic"},
		),
		eventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "events_dropped_total",
				Help:      "Total number of inbound events dropped by reason.",
			},
			[]string{"reason"},
		),
		publishRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "publish_retries_total",
				Help:      "Total number of publishes re-queued after a missing or negative broker acknowledgement.",
			},
		),
		jobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pen_batch_engine",
				Name:      "scheduler_job_runs_total",
				Help:      "Total number of scheduled job runs by job name and result.",
			},
			[]string{"job", "result"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pen_batch_engine",
				Name:      "scheduler_job_duration_seconds",
				Help:      "Scheduled job duration in seconds by job name.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.filesIngestedTotal,
		m.studentsLoadedTotal,
		m.ingestDuration,
		m.sagasStartedTotal,
		m.sagasCompletedTotal,
		m.sagasFailedTotal,
		m.eventsPublishedTotal,
		m.eventsDroppedTotal,
		m.publishRetriesTotal,
		m.jobRunsTotal,
		m.jobDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncFileIngested(status string) {
	if m == nil {
		return
	}
	m.filesIngestedTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) AddStudentsLoaded(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.studentsLoadedTotal.Add(float64(count))
}

func (m *Metrics) ObserveIngestDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.ingestDuration.Observe(seconds)
}

func (m *Metrics) IncSagaStarted(sagaType string) {
	if m == nil {
		return
	}
	m.sagasStartedTotal.WithLabelValues(normalizeLabel(sagaType)).Inc()
}

func (m *Metrics) IncSagaCompleted(sagaType string) {
	if m == nil {
		return
	}
	m.sagasCompletedTotal.WithLabelValues(normalizeLabel(sagaType)).Inc()
}

func (m *Metrics) IncSagaFailed(sagaType string) {
	if m == nil {
		return
	}
	m.sagasFailedTotal.WithLabelValues(normalizeLabel(sagaType)).Inc()
}

func (m *Metrics) IncEventPublished(topic string) {
	if m == nil {
		return
	}
	m.eventsPublishedTotal.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *Metrics) IncEventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDroppedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncPublishRetry() {
	if m == nil {
		return
	}
	m.publishRetriesTotal.Inc()
}

func (m *Metrics) RecordJobRun(job string, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobRunsTotal.WithLabelValues(normalizeLabel(job), normalizeLabel(result)).Inc()
	m.jobDuration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(label string) string {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
