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
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openrouter_bot_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"chat_type"})

	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openrouter_bot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	quotaDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openrouter_bot_quota_denied_total",
		Help: "Total number of requests denied by quota",
	}, []string{"tier"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openrouter_bot_completion_duration_seconds",
		Help:    "Duration of completion requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openrouter_bot_completions_total",
		Help: "Total number of completion requests",
	}, []string{"model", "status"})

	upgradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openrouter_bot_upgrades_total",
		Help: "Total number of plus upgrades",
	})

	snapshotOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openrouter_bot_snapshot_operations_total",
		Help: "Total number of snapshot saves and loads",
	}, []string{"operation", "status"})

	knownUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openrouter_bot_known_users",
		Help: "Number of users in the store",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordQuotaDenied records a quota-denied request
func (m *Metrics) RecordQuotaDenied(tier string) {
	quotaDenied.WithLabelValues(tier).Inc()
}

// RecordCompletion records a completion request
func (m *Metrics) RecordCompletion(model, status string, duration time.Duration) {
	completionDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	completionsTotal.WithLabelValues(model, status).Inc()
}

// RecordUpgrade records a successful plus upgrade
func (m *Metrics) RecordUpgrade() {
	upgradesTotal.Inc()
}

// RecordSnapshotOperation records a snapshot save or load
func (m *Metrics) RecordSnapshotOperation(operation, status string) {
	snapshotOperations.WithLabelValues(operation, status).Inc()
}

// SetKnownUsers sets the number of users in the store
func (m *Metrics) SetKnownUsers(count float64) {
	knownUsers.Set(count)
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
