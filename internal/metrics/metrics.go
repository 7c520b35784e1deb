// Package metrics provides Prometheus instrumentation for the portfolio service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerMutations counts committed ledger writes, partitioned by kind (record, remove).
	LedgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_ledger_mutations_total",
		Help: "Committed ledger mutations",
	}, []string{"kind"})

	// ClampedDisposals counts disposals cut down to the held quantity.
	ClampedDisposals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_clamped_disposals_total",
		Help: "Disposals clamped to the current holding",
	})

	// Recalculations counts position recalculations by outcome (saved, unchanged, deleted).
	Recalculations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_recalculations_total",
		Help: "Position recalculations",
	}, []string{"outcome"})

	ValueSeriesBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_value_series_builds_total",
		Help: "Value series reconstructions by outcome",
	}, []string{"outcome"})

	// CandleFetches counts price candle lookups by source (alphavantage, database) and outcome.
	CandleFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_candle_fetches_total",
		Help: "Price candle fetches",
	}, []string{"source", "outcome"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_candle_cache_hits_total",
		Help: "Candle cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_candle_cache_misses_total",
		Help: "Candle cache misses",
	})

	// AlertsTriggered counts threshold crossings by rule type.
	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_alerts_triggered_total",
		Help: "Threshold alerts recorded",
	}, []string{"rule_type"})

	// JobRuns counts scheduled job executions by job and outcome.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_job_runs_total",
		Help: "Scheduled job runs",
	}, []string{"job", "outcome"})

	// EventsConsumed counts Kafka events handled by the consumer, by outcome.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_events_consumed_total",
		Help: "Inbound transaction events",
	}, []string{"outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled with the matched route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routeTemplate(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routeTemplate keeps owner names and ids out of label values.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
