package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Realtime store metrics
	storeOpsTotal    *prometheus.CounterVec
	storeOpDuration  *prometheus.HistogramVec
	storeRetriesTotal prometheus.Counter

	// WebSocket metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Call metrics
	callsActive            prometheus.Gauge
	callOutcomesTotal      *prometheus.CounterVec
	negotiationConflicts   prometheus.Counter

	// Chat metrics
	messagesSentTotal   *prometheus.CounterVec
	messagesReadTotal   prometheus.Counter
	typingUpdatesTotal  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being served",
				ConstLabels: labels,
			},
		),
		storeOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "realtime_store_operations_total",
				Help:        "Total number of realtime document store operations",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		storeOpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "realtime_store_operation_duration_seconds",
				Help:        "Realtime store operation latency in seconds",
				ConstLabels: labels,
				Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		storeRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "realtime_store_retries_total",
				Help:        "Total number of retried realtime store operations",
				ConstLabels: labels,
			},
		),
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"direction", "type"},
		),
		callsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of call negotiations currently in progress",
				ConstLabels: labels,
			},
		),
		callOutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_outcomes_total",
				Help:        "Total number of finished call negotiations by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		negotiationConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "call_negotiation_conflicts_total",
				Help:        "Total number of lost first-writer offer races (glare)",
				ConstLabels: labels,
			},
		),
		messagesSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "chat_messages_sent_total",
				Help:        "Total number of chat messages sent",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		messagesReadTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "chat_messages_read_total",
				Help:        "Total number of chat messages flipped to read",
				ConstLabels: labels,
			},
		),
		typingUpdatesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "typing_updates_total",
				Help:        "Total number of typing indicator writes",
				ConstLabels: labels,
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// RecordStoreOperation records a realtime store operation
func (m *Metrics) RecordStoreOperation(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeOpsTotal.WithLabelValues(operation, status).Inc()
	m.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStoreRetry records a retried store operation
func (m *Metrics) RecordStoreRetry() {
	m.storeRetriesTotal.Inc()
}

// WebSocketConnected increments the WebSocket connection gauge
func (m *Metrics) WebSocketConnected() {
	m.websocketConnections.Inc()
}

// WebSocketDisconnected decrements the WebSocket connection gauge
func (m *Metrics) WebSocketDisconnected() {
	m.websocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(direction, msgType string) {
	m.websocketMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// CallStarted increments the active call gauge
func (m *Metrics) CallStarted() {
	m.callsActive.Inc()
}

// CallEnded decrements the active call gauge and records the outcome
func (m *Metrics) CallEnded(outcome string) {
	m.callsActive.Dec()
	m.callOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordNegotiationConflict records a lost offer race
func (m *Metrics) RecordNegotiationConflict() {
	m.negotiationConflicts.Inc()
}

// RecordMessageSent records a sent chat message
func (m *Metrics) RecordMessageSent(kind string) {
	m.messagesSentTotal.WithLabelValues(kind).Inc()
}

// RecordMessagesRead records n messages flipped to read
func (m *Metrics) RecordMessagesRead(n int) {
	m.messagesReadTotal.Add(float64(n))
}

// RecordTypingUpdate records a typing indicator write
func (m *Metrics) RecordTypingUpdate() {
	m.typingUpdatesTotal.Inc()
}
