package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsMiddleware collects metrics about requests
type MetricsMiddleware struct {
	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
}

// NewMetricsMiddleware creates a new metrics middleware
func NewMetricsMiddleware(reg prometheus.Registerer) *MetricsMiddleware {
	const namespace = "posture_api"

	factory := promauto.With(reg)

	return &MetricsMiddleware{
		requestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Current number of requests being processed",
			},
			[]string{"method"},
		),
	}
}

// CollectMetrics collects metrics for requests, labelled by route template
func (m *MetricsMiddleware) CollectMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		route := routeTemplate(r)

		m.requestsInFlight.WithLabelValues(method).Inc()
		defer m.requestsInFlight.WithLabelValues(method).Dec()

		respWriter := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(respWriter, r)
		duration := time.Since(start).Seconds()

		m.requestCounter.WithLabelValues(method, route, strconv.Itoa(respWriter.status)).Inc()
		m.requestDuration.WithLabelValues(method, route).Observe(duration)
	})
}

// routeTemplate keeps label cardinality bounded for unmatched paths
func routeTemplate(r *http.Request) string {
	if current := mux.CurrentRoute(r); current != nil {
		if tmpl, err := current.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status int
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	mrw.status = code
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Flush() {
	if flusher, ok := mrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
