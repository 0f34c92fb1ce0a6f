package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Campaign metrics
	CampaignsStartedTotal   int64
	CampaignsCompletedTotal int64
	CallsPlacedTotal        int64
	CallsFailedTotal        int64
	FeedbackRecordedTotal   int64
	ManualDialsTotal        int64
	RemindersFiredTotal     int64

	// Aggregation metrics
	SummaryBroadcastsTotal int64

	// Persistence metrics
	PersistenceFailuresTotal int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketMessagesTotal       int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// Feedback distribution
	feedbackByOutcome map[string]int64

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			feedbackByOutcome:    make(map[string]int64),
			httpRequestsTotal:    make(map[string]map[int]int64),
			httpRequestDurations: make(map[string][]float64),
			startTime:            time.Now(),
		}
	})
	return instance
}

// IncrementCampaignsStarted increments the campaigns started counter
func (m *Metrics) IncrementCampaignsStarted() {
	m.mu.Lock()
	m.CampaignsStartedTotal++
	m.mu.Unlock()
}

// IncrementCampaignsCompleted increments the campaigns completed counter
func (m *Metrics) IncrementCampaignsCompleted() {
	m.mu.Lock()
	m.CampaignsCompletedTotal++
	m.mu.Unlock()
}

// IncrementCallsPlaced increments the calls placed counter
func (m *Metrics) IncrementCallsPlaced() {
	m.mu.Lock()
	m.CallsPlacedTotal++
	m.mu.Unlock()
}

// IncrementCallsFailed increments the failed dial counter
func (m *Metrics) IncrementCallsFailed() {
	m.mu.Lock()
	m.CallsFailedTotal++
	m.mu.Unlock()
}

// RecordFeedback increments the feedback counter and its outcome bucket
func (m *Metrics) RecordFeedback(outcome string) {
	m.mu.Lock()
	m.FeedbackRecordedTotal++
	m.feedbackByOutcome[outcome]++
	m.mu.Unlock()
}

// IncrementManualDials increments the manual dial counter
func (m *Metrics) IncrementManualDials() {
	m.mu.Lock()
	m.ManualDialsTotal++
	m.mu.Unlock()
}

// IncrementRemindersFired increments the reminder counter
func (m *Metrics) IncrementRemindersFired() {
	m.mu.Lock()
	m.RemindersFiredTotal++
	m.mu.Unlock()
}

// IncrementSummaryBroadcasts increments the summary broadcast counter
func (m *Metrics) IncrementSummaryBroadcasts() {
	m.mu.Lock()
	m.SummaryBroadcastsTotal++
	m.mu.Unlock()
}

// IncrementPersistenceFailures increments the persistence failure counter
func (m *Metrics) IncrementPersistenceFailures() {
	m.mu.Lock()
	m.PersistenceFailuresTotal++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessagesTotal++
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations for percentile calculation
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("dialmate_uptime_seconds", time.Since(m.startTime).Seconds())

		// Campaign metrics
		write("dialmate_campaigns_started_total", m.CampaignsStartedTotal)
		write("dialmate_campaigns_completed_total", m.CampaignsCompletedTotal)
		write("dialmate_calls_placed_total", m.CallsPlacedTotal)
		write("dialmate_calls_failed_total", m.CallsFailedTotal)
		write("dialmate_feedback_recorded_total", m.FeedbackRecordedTotal)
		write("dialmate_manual_dials_total", m.ManualDialsTotal)
		write("dialmate_reminders_fired_total", m.RemindersFiredTotal)

		// Feedback distribution
		for outcome, count := range m.feedbackByOutcome {
			write("dialmate_feedback_by_outcome", count, "outcome", outcome)
		}

		// Aggregation metrics
		write("dialmate_summary_broadcasts_total", m.SummaryBroadcastsTotal)

		// Persistence metrics
		write("dialmate_persistence_failures_total", m.PersistenceFailuresTotal)

		// WebSocket metrics
		write("dialmate_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("dialmate_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("dialmate_websocket_active_connections", m.activeConnections)
		write("dialmate_websocket_messages_total", m.WebSocketMessagesTotal)
		write("dialmate_websocket_errors_total", m.WebSocketErrorsTotal)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("dialmate_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
