package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "text_analyzer_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "text_analyzer_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// Analysis metrics
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "text_analyzer_analyses_total",
		Help: "Total number of analysis outcomes",
	}, []string{"outcome"})

	// Model metrics
	modelRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "text_analyzer_model_request_duration_seconds",
		Help:    "Duration of model attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	modelRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "text_analyzer_model_requests_total",
		Help: "Total number of model attempts",
	}, []string{"model", "status"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "text_analyzer_cache_hits_total",
		Help: "Total number of cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "text_analyzer_cache_misses_total",
		Help: "Total number of cache misses",
	})

	// Limit metrics
	quotaDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "text_analyzer_quota_denied_total",
		Help: "Total number of requests denied by the daily quota",
	})

	burstLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "text_analyzer_burst_limited_total",
		Help: "Total number of requests rejected by the burst limiter",
	})

	// Ledger metrics
	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "text_analyzer_ledger_operations_total",
		Help: "Total number of quota ledger operations",
	}, []string{"operation", "status"})

	ledgerOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "text_analyzer_ledger_operation_duration_seconds",
		Help:    "Duration of quota ledger operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Callers with at least one request today
	activeCallers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "text_analyzer_active_callers",
		Help: "Number of callers with usage recorded today",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordAnalysis records the final outcome of one analyze call
func (m *Metrics) RecordAnalysis(outcome string) {
	analysesTotal.WithLabelValues(outcome).Inc()
}

// RecordModelAttempt records one candidate call
func (m *Metrics) RecordModelAttempt(model, status string, duration time.Duration) {
	modelRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	modelRequestsTotal.WithLabelValues(model, status).Inc()
}

func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

func (m *Metrics) RecordQuotaDenied() {
	quotaDenied.Inc()
}

func (m *Metrics) RecordBurstLimited() {
	burstLimited.Inc()
}

// RecordLedgerOperation records a quota ledger operation
func (m *Metrics) RecordLedgerOperation(operation, status string, duration time.Duration) {
	ledgerOperations.WithLabelValues(operation, status).Inc()
	ledgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) SetActiveCallers(count int) {
	activeCallers.Set(float64(count))
}

// NewMetricsServer builds the HTTP server that exposes path for scraping.
func NewMetricsServer(port int, path string) *http.Server {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
