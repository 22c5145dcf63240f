package constants

import "time"

// Database constants
const (
	DatabaseName = "chat_db"

	// Pool sizing for pgxpool
	DBMaxConns          = 20
	DBMinConns          = 2
	DBMaxConnLifetime   = 30 * time.Minute
	DBMaxConnIdleTime   = 5 * time.Minute
	DBHealthCheckPeriod = 30 * time.Second

	// Connection retries at startup
	DBConnectAttempts = 5
	DBConnectBackoff  = 2 * time.Second
)

// Health check constants
const (
	HealthCheckTimeout = 5 // seconds
)

// WebSocket close codes sent to clients.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseTryAgainLater   = 1013
)

// Close reasons paired with the codes above.
const (
	ReasonShutdown        = "server shutting down"
	ReasonSlowConsumer    = "slow consumer"
	ReasonDuplicateID     = "connection already registered"
	ReasonTransportFailed = "transport failure"
	ReasonClientClosed    = "client closed"
	ReasonAtCapacity      = "server at capacity"
)

// Display name used in presence text when an identity has none.
const AnonymousName = "anonymous"
