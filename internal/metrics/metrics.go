// Package metrics exposes Prometheus instrumentation for the API and jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the application metrics.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	FeedPagesServed   *prometheus.CounterVec
	SuspensionsSwept  *prometheus.CounterVec
	EventPublishTotal *prometheus.CounterVec
	IngestJobsTotal   *prometheus.CounterVec
	ThumbnailCrops    *prometheus.CounterVec
}

// New registers the application metrics, plus Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipverse",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clipverse",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		FeedPagesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipverse",
			Name:      "feed_pages_served_total",
			Help:      "Feed pages served per variant.",
		}, []string{"variant"}),
		SuspensionsSwept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipverse",
			Name:      "suspensions_expired_total",
			Help:      "Suspensions lifted by the expiry sweep.",
		}, []string{"target"}),
		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipverse",
			Name:      "event_publish_total",
			Help:      "Event publish attempts.",
		}, []string{"subject", "status"}),
		IngestJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipverse",
			Name:      "ingest_jobs_total",
			Help:      "Upload ingestion jobs by outcome.",
		}, []string{"status"}),
		ThumbnailCrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipverse",
			Name:      "thumbnail_crops_total",
			Help:      "Thumbnail crops by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestTotal,
		m.HTTPRequestDuration,
		m.FeedPagesServed,
		m.SuspensionsSwept,
		m.EventPublishTotal,
		m.IngestJobsTotal,
		m.ThumbnailCrops,
	)
	return m
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Outcome maps an error onto the status label used by job counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware records request counts and latency. It must wrap the ServeMux
// directly so the matched route pattern is visible after the call.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
