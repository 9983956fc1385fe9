package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/xrlt/pkg/domain"
)

const namespace = "xrlt"

// Metrics holds the collectors of one engine.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	includes        *prometheus.CounterVec
	includeDuration prometheus.Histogram
	scripts         *prometheus.CounterVec
	scriptDuration  prometheus.Histogram
}

// NewMetrics creates the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		includes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "includes_total",
			Help:      "Included resources by outcome",
		}, []string{"result"}),
		includeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "include_duration_seconds",
			Help:      "Time spent fetching included resources",
			Buckets:   prometheus.DefBuckets,
		}),
		scripts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_total",
			Help:      "Script executions by outcome",
		}, []string{"result"}),
		scriptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "script_duration_seconds",
			Help:      "Script execution time",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns engine hooks feeding the include and script collectors.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnInclude: func(_ string, cached bool, elapsed time.Duration, err error) {
			result := "fetched"
			switch {
			case err != nil:
				result = "failed"
			case cached:
				result = "cached"
			}
			m.includes.WithLabelValues(result).Inc()
			m.includeDuration.Observe(elapsed.Seconds())
		},
		OnScript: func(_ string, elapsed time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "failed"
			}
			m.scripts.WithLabelValues(result).Inc()
			m.scriptDuration.Observe(elapsed.Seconds())
		},
	}
}

// Middleware records HTTP metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		status := strconv.Itoa(ww.status)
		// Use the route pattern if available (to avoid high cardinality with sheet names)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		m.requests.WithLabelValues(r.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
