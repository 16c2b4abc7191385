package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonerun",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zonerun",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	conquestSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonerun",
			Subsystem: "conquest",
			Name:      "submissions_total",
			Help:      "Total track submissions by outcome.",
		},
		[]string{"status"},
	)

	conquestTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonerun",
			Subsystem: "conquest",
			Name:      "transitions_total",
			Help:      "Total cell ownership transitions by kind.",
		},
		[]string{"transition"},
	)

	conquestCells = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "zonerun",
			Subsystem: "conquest",
			Name:      "cells_per_submission",
			Help:      "Number of cells claimed per accepted submission.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		},
	)

	achievementAwards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zonerun",
			Subsystem: "achievements",
			Name:      "awards_total",
			Help:      "Total achievements granted.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		conquestSubmissions,
		conquestTransitions,
		conquestCells,
		achievementAwards,
	)
}

// Handler serves the metrics endpoint for the application registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveSubmission records the outcome of one conquest submission.
// status is one of "accepted", "rejected" or "failed".
func ObserveSubmission(status string, cells int) {
	conquestSubmissions.WithLabelValues(status).Inc()
	if status == "accepted" {
		conquestCells.Observe(float64(cells))
	}
}

// IncTransition counts one cell transition of the given kind.
func IncTransition(kind string) {
	conquestTransitions.WithLabelValues(kind).Inc()
}

// IncAward counts one granted achievement.
func IncAward() {
	achievementAwards.Inc()
}

// Instrument wraps an HTTP handler with request counting and latency
// observation. The path label uses the route pattern, not the raw URL.
func Instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
