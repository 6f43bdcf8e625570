package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the dojo server
type Metrics struct {
	// Turn metrics
	TurnsTotal     *prometheus.CounterVec
	TurnDuration   *prometheus.HistogramVec
	TurnRounds     prometheus.Histogram
	TurnConflicts  prometheus.Counter
	ActiveTurns    prometheus.Gauge
	ToolCallsTotal *prometheus.CounterVec

	// Reasoning service metrics
	ReasoningRequests *prometheus.CounterVec
	ReasoningLatency  prometheus.Histogram
	ReasoningTokens   *prometheus.CounterVec

	// Progression metrics
	BeltPromotions    *prometheus.CounterVec
	SessionsCompleted *prometheus.CounterVec

	// System metrics
	EventsPublished     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Registration
// happens once per process; later calls return the same set.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			TurnsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dojo_turns_total",
					Help: "Total number of turns processed, by terminal reason",
				},
				[]string{"session_type", "reason"},
			),
			TurnDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "dojo_turn_duration_seconds",
					Help:    "Wall time of a turn from lock acquisition to release",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
				},
				[]string{"session_type"},
			),
			TurnRounds: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "dojo_turn_rounds",
					Help:    "Reasoning rounds used per turn",
					Buckets: prometheus.LinearBuckets(1, 1, 10),
				},
			),
			TurnConflicts: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "dojo_turn_conflicts_total",
					Help: "Turns rejected because the session was locked",
				},
			),
			ActiveTurns: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "dojo_active_turns",
					Help: "Turns currently holding a session lock",
				},
			),
			ToolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dojo_tool_calls_total",
					Help: "Tool calls executed, by tool and result",
				},
				[]string{"tool", "result"},
			),

			ReasoningRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dojo_reasoning_requests_total",
					Help: "Reasoning service rounds, by result",
				},
				[]string{"result"},
			),
			ReasoningLatency: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "dojo_reasoning_round_seconds",
					Help:    "Duration of one streamed reasoning round",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
				},
			),
			ReasoningTokens: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dojo_reasoning_tokens_total",
					Help: "Tokens reported by the reasoning service",
				},
				[]string{"kind"},
			),

			BeltPromotions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dojo_belt_promotions_total",
					Help: "Belt changes, by destination belt",
				},
				[]string{"skill", "to_belt"},
			),
			SessionsCompleted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dojo_sessions_completed_total",
					Help: "Sessions that reached the completed state",
				},
				[]string{"session_type"},
			),

			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dojo_events_published_total",
					Help: "Total number of events published",
				},
				[]string{"event_type"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dojo_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "dojo_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})
	return sharedMetrics
}

// RecordTurn records a finished turn
func (m *Metrics) RecordTurn(sessionType, reason string, rounds int, seconds float64) {
	m.TurnsTotal.WithLabelValues(sessionType, reason).Inc()
	m.TurnDuration.WithLabelValues(sessionType).Observe(seconds)
	if rounds > 0 {
		m.TurnRounds.Observe(float64(rounds))
	}
}

// RecordToolCall records one tool execution
func (m *Metrics) RecordToolCall(tool string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, result).Inc()
}

// RecordReasoningRound records one reasoning round
func (m *Metrics) RecordReasoningRound(success bool, seconds float64, promptTokens, completionTokens int) {
	result := "success"
	if !success {
		result = "error"
	}
	m.ReasoningRequests.WithLabelValues(result).Inc()
	m.ReasoningLatency.Observe(seconds)
	if promptTokens > 0 {
		m.ReasoningTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.ReasoningTokens.WithLabelValues("completion").Add(float64(completionTokens))
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
