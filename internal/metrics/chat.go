package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Windows backing the per-second figures in the health summary.
var (
	messageWindow    = NewSlidingWindow(60*time.Second, 10000)
	connectionWindow = NewSlidingWindow(60*time.Second, 1000)
)

// Local mirrors of a few collectors, since prometheus values can't be read back cheaply.
var (
	activeSessionsCount int64
	messagesPublished   int64
	errorCount          int64
)

var (
	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomchat_active_sessions",
		Help: "Number of sessions currently registered in a room",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomchat_active_rooms",
		Help: "Number of rooms with at least one member",
	})

	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_sessions_closed_total",
		Help: "Sessions closed, by reason",
	}, []string{"reason"}) // "client", "slow_consumer", "transport", "shutdown", "duplicate"

	// Message metrics
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomchat_messages_received_total",
		Help: "Inbound chat frames accepted from clients",
	})

	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_messages_rejected_total",
		Help: "Inbound chat frames rejected, by reason",
	}, []string{"reason"}) // "empty", "too_long", "rate_limited", "store"

	EnvelopesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_envelopes_published_total",
		Help: "Envelopes handed to the broadcaster, by kind",
	}, []string{"kind"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_deliveries_total",
		Help: "Per-recipient delivery outcomes",
	}, []string{"outcome"}) // "delivered", "slow", "dead"

	PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomchat_publish_duration_seconds",
		Help:    "Time spent fanning one envelope out to a room",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	FanoutSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomchat_fanout_recipients",
		Help:    "Recipients per published envelope",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	MessageSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomchat_message_size_bytes",
		Help:    "Size of outbound frames in bytes",
		Buckets: prometheus.ExponentialBuckets(16, 4, 7),
	})

	// Store metrics
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_store_operations_total",
		Help: "Message store calls by result",
	}, []string{"result"}) // "ok", "error"

	DBConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_db_connections_total",
		Help: "Database pool connect attempts by status",
	}, []string{"status"}) // "success", "failure", "closed"

	StoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomchat_store_duration_seconds",
		Help:    "Latency of message store appends",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 7),
	})

	// Error metrics
	ErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_errors_total",
		Help: "Errors by type",
	}, []string{"type"})

	// HTTP metrics
	HandshakesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_handshakes_rejected_total",
		Help: "Upgrade requests refused before a session started",
	}, []string{"reason"}) // "auth", "room", "limit", "throttled", "upgrade"
)

// SessionOpened records a session joining a room.
func SessionOpened() {
	ActiveSessions.Inc()
	atomic.AddInt64(&activeSessionsCount, 1)
	connectionWindow.Add()
}

// SessionClosed records a session leaving, labelled by why it ended.
func SessionClosed(reason string) {
	ActiveSessions.Dec()
	atomic.AddInt64(&activeSessionsCount, -1)
	SessionsClosed.WithLabelValues(reason).Inc()
}

// GetActiveSessionsCount returns the locally mirrored session gauge.
func GetActiveSessionsCount() int64 {
	return atomic.LoadInt64(&activeSessionsCount)
}

// SyncActiveSessionsCount corrects drift between the gauge and the registry.
func SyncActiveSessionsCount(actual int64) {
	if atomic.LoadInt64(&activeSessionsCount) != actual {
		atomic.StoreInt64(&activeSessionsCount, actual)
		ActiveSessions.Set(float64(actual))
	}
}

// MessagePublished records one envelope handed to the broadcaster.
func MessagePublished(kind string, recipients int, elapsed time.Duration) {
	EnvelopesPublished.WithLabelValues(kind).Inc()
	FanoutSize.Observe(float64(recipients))
	PublishDuration.Observe(elapsed.Seconds())
	atomic.AddInt64(&messagesPublished, 1)
	messageWindow.Add()
}

// GetMessagesPublished returns the number of envelopes published since start.
func GetMessagesPublished() int64 {
	return atomic.LoadInt64(&messagesPublished)
}

// IncrementErrorCount bumps the error counter for the given type.
func IncrementErrorCount(errType string) {
	ErrorsCount.WithLabelValues(errType).Inc()
	atomic.AddInt64(&errorCount, 1)
}

// GetErrorCount returns the number of errors recorded since start.
func GetErrorCount() int64 {
	return atomic.LoadInt64(&errorCount)
}

// GetMessagesPerSecond returns the published-envelope rate over the last minute.
func GetMessagesPerSecond() float64 {
	return messageWindow.Rate()
}

// GetConnectionsPerSecond returns the session-open rate over the last minute.
func GetConnectionsPerSecond() float64 {
	return connectionWindow.Rate()
}

// RegisterMetrics pre-creates labelled series so dashboards see zeros.
func RegisterMetrics() {
	for _, r := range []string{"client", "slow_consumer", "transport", "shutdown", "duplicate"} {
		SessionsClosed.WithLabelValues(r)
	}
	for _, r := range []string{"empty", "too_long", "rate_limited", "store"} {
		MessagesRejected.WithLabelValues(r)
	}
	for _, k := range []string{"message", "presence", "error"} {
		EnvelopesPublished.WithLabelValues(k)
	}
	for _, o := range []string{"delivered", "slow", "dead"} {
		Deliveries.WithLabelValues(o)
	}
	for _, r := range []string{"ok", "error"} {
		StoreOperations.WithLabelValues(r)
	}
	for _, s := range []string{"success", "failure", "closed"} {
		DBConnections.WithLabelValues(s)
	}
	for _, r := range []string{"auth", "room", "limit", "throttled", "upgrade"} {
		HandshakesRejected.WithLabelValues(r)
	}
	for _, t := range []string{"validation", "database", "websocket", "rate_limit", "auth", "timeout", "internal"} {
		ErrorsCount.WithLabelValues(t)
	}
}
