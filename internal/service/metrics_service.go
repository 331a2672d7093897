package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth outcomes recorded by RecordAuthEvent.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsSnapshot is a lightweight view of the collected counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SessionsCreated          uint64    `json:"sessions_created"`
	SessionsEvicted          uint64    `json:"sessions_evicted"`
	RateLimited              uint64    `json:"rate_limited"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	authEvents      *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsEvicted prometheus.Counter
	rateLimited     *prometheus.CounterVec
	mailDispatch    *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	sessionCreateCount   uint64
	sessionEvictCount    uint64
	rateLimitedCount     uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	authEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Authentication operations by outcome",
	}, []string{"operation", "outcome"})

	sessionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_created_total",
		Help: "Refresh sessions created by login or registration",
	})

	sessionsEvicted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_evicted_total",
		Help: "Sessions removed to honour the per-user session cap",
	})

	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"scope"})

	mailDispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_dispatch_total",
		Help: "Outbound mail jobs by result",
	}, []string{"kind", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, authEvents, sessionsCreated, sessionsEvicted, rateLimited, mailDispatch, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		authEvents:      authEvents,
		sessionsCreated: sessionsCreated,
		sessionsEvicted: sessionsEvicted,
		rateLimited:     rateLimited,
		mailDispatch:    mailDispatch,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordAuthEvent counts an auth operation outcome.
func (m *MetricsService) RecordAuthEvent(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.authEvents.WithLabelValues(operation, outcome).Inc()
}

// RecordSessionCreated counts a new session and any sessions it evicted.
func (m *MetricsService) RecordSessionCreated(evicted int64) {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	atomic.AddUint64(&m.sessionCreateCount, 1)
	if evicted > 0 {
		m.sessionsEvicted.Add(float64(evicted))
		atomic.AddUint64(&m.sessionEvictCount, uint64(evicted))
	}
}

// RecordRateLimited counts a rejected request for scope.
func (m *MetricsService) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
	atomic.AddUint64(&m.rateLimitedCount, 1)
}

// RecordMailDispatch counts a mail job result.
func (m *MetricsService) RecordMailDispatch(kind string, err error) {
	if m == nil {
		return
	}
	status := OutcomeSuccess
	if err != nil {
		status = OutcomeFailure
	}
	m.mailDispatch.WithLabelValues(kind, status).Inc()
}

// Snapshot returns aggregated metrics suitable for a JSON summary endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SessionsCreated:          atomic.LoadUint64(&m.sessionCreateCount),
		SessionsEvicted:          atomic.LoadUint64(&m.sessionEvictCount),
		RateLimited:              atomic.LoadUint64(&m.rateLimitedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
