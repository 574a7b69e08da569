// Package observability holds the Prometheus instruments shared by the gate,
// the completion proxy and the workspace cache.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Completion modes used as the "mode" label.
const (
	ModeBuffered = "buffered"
	ModeStream   = "stream"
)

var (
	completionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirchat_completion_requests_total",
			Help: "Completion proxy requests by provider, mode and response status",
		},
		[]string{"provider", "mode", "status"},
	)

	completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sirchat_completion_duration_seconds",
			Help:    "Time until the buffered response or the end of the stream",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "mode"},
	)

	streamChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirchat_stream_chunks_total",
			Help: "Delta chunks forwarded to clients",
		},
		[]string{"provider"},
	)

	gateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirchat_gate_decisions_total",
			Help: "Request gate outcomes",
		},
		[]string{"decision"},
	)

	workspaceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirchat_workspace_cache_lookups_total",
			Help: "Home workspace cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordCompletion records one finished completion.
func RecordCompletion(provider, mode string, status int, elapsed time.Duration) {
	completionRequests.WithLabelValues(provider, mode, strconv.Itoa(status)).Inc()
	completionDuration.WithLabelValues(provider, mode).Observe(elapsed.Seconds())
}

// RecordStreamChunk counts one forwarded delta.
func RecordStreamChunk(provider string) {
	streamChunks.WithLabelValues(provider).Inc()
}

// RecordGateDecision counts one gate outcome such as "pass" or "redirect_login".
func RecordGateDecision(decision string) {
	gateDecisions.WithLabelValues(decision).Inc()
}

// RecordWorkspaceCacheLookup counts a cache hit, miss or error.
func RecordWorkspaceCacheLookup(result string) {
	workspaceCacheLookups.WithLabelValues(result).Inc()
}
