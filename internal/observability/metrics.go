package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reply_gateway_active_requests",
		Help: "Number of chat turns currently in the pipeline",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reply_gateway_requests_total",
		Help: "Total number of chat turns processed, by delivery mode",
	}, []string{"mode"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reply_gateway_request_duration_seconds",
		Help:    "End-to-end pipeline duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// Language backend metrics
	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reply_gateway_backend_requests_total",
		Help: "Total number of language backend requests",
	}, []string{"status"})

	backendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reply_gateway_backend_latency_seconds",
		Help:    "Language backend latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reply_gateway_tts_outcomes_total",
		Help: "Speech synthesis outcomes (generated or the skip reason)",
	}, []string{"outcome"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reply_gateway_tts_latency_seconds",
		Help:    "Speech synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Stream metrics
	streamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reply_gateway_stream_events_total",
		Help: "Total number of encoded reply events by type",
	}, []string{"type"})

	// Conversation log metrics
	conversationWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reply_gateway_conversation_writes_total",
		Help: "Conversation log writes by status",
	}, []string{"status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reply_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reply_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reply_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reply_gateway_audio_bytes_total",
		Help: "Total synthesized audio bytes returned to clients",
	})
)

// Metrics tracks metrics for a single chat turn
type Metrics struct {
	correlationID    string
	startTime        time.Time
	backendStartTime time.Time
	ttsStartTime     time.Time
	mu               sync.Mutex
}

// NewRequestMetrics creates a new metrics tracker for a chat turn
func NewRequestMetrics(correlationID string) *Metrics {
	return &Metrics{
		correlationID: correlationID,
		startTime:     time.Now(),
	}
}

// CorrelationID returns the identifier the tracker was created with
func (m *Metrics) CorrelationID() string {
	return m.correlationID
}

// RecordRequestStart records that a turn entered the pipeline
func (m *Metrics) RecordRequestStart() {
	activeRequests.Inc()
}

// RecordRequestEnd records the delivery mode and overall duration of a turn
func (m *Metrics) RecordRequestEnd(mode string) {
	activeRequests.Dec()
	requestsTotal.WithLabelValues(mode).Inc()
	requestDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordBackendStart records the start of a language backend call
func (m *Metrics) RecordBackendStart() {
	m.mu.Lock()
	m.backendStartTime = time.Now()
	m.mu.Unlock()
}

// RecordBackendEnd records the end of a language backend call
func (m *Metrics) RecordBackendEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.backendStartTime.IsZero() {
		backendLatency.Observe(time.Since(m.backendStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	backendRequests.WithLabelValues(status).Inc()
}

// RecordTTSStart records the start of speech synthesis
func (m *Metrics) RecordTTSStart() {
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSEnd records the synthesis outcome. An empty skip reason means
// audio was generated.
func (m *Metrics) RecordTTSEnd(skipReason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ttsStartTime.IsZero() {
		ttsLatency.Observe(time.Since(m.ttsStartTime).Seconds())
	}

	outcome := skipReason
	if outcome == "" {
		outcome = "generated"
	}
	ttsRequests.WithLabelValues(outcome).Inc()
}

// RecordStreamEvent counts one encoded event
func (m *Metrics) RecordStreamEvent(eventType string) {
	streamEvents.WithLabelValues(eventType).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records decoded audio bytes sent to the client
func (m *Metrics) RecordAudioBytes(bytes int64) {
	audioBytesProduced.Add(float64(bytes))
}

// RecordConversationWrite counts a conversation log write
func RecordConversationWrite(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	conversationWrites.WithLabelValues(status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
