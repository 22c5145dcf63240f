package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/constants"
	"github.com/Shugur-Network/roomchat/internal/metrics"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the status of a specific component
type ComponentStatus struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthResponse is the body served on /health.
type HealthResponse struct {
	Status     HealthStatus       `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	Uptime     string             `json:"uptime"`
	Components []*ComponentStatus `json:"components"`
	Summary    map[string]any     `json:"summary"`
}

// StoreInterface is the part of the message store the checker needs.
type StoreInterface interface {
	Ping(ctx context.Context) error
}

// PoolReporter is implemented by stores backed by a connection pool.
type PoolReporter interface {
	Stats() DatabaseStats
}

// ChatInterface reports live session and room counts.
type ChatInterface interface {
	SessionCount() int
	RoomCount() int
}

// DatabaseStats is a connection pool snapshot.
type DatabaseStats struct {
	TotalConns    int32
	AcquiredConns int32
	IdleConns     int32
	MaxConns      int32
}

// Memory and goroutine thresholds.
const (
	memoryWarningMB   = 500
	memoryCriticalMB  = 1000
	goroutineWarning  = 5000
	goroutineCritical = 20000
)

// HealthChecker performs health checks over the store, the hub and the runtime.
type HealthChecker struct {
	store     StoreInterface
	chat      ChatInterface
	cfg       *config.Config
	logger    *zap.Logger
	startTime time.Time
	version   string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(store StoreInterface, chat ChatInterface, cfg *config.Config, logger *zap.Logger, version string) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		store:     store,
		chat:      chat,
		cfg:       cfg,
		logger:    logger.Named("health"),
		startTime: time.Now(),
		version:   version,
	}
}

// CheckHealth runs every component check and folds them into one status.
func (h *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	startTime := time.Now()
	components := []*ComponentStatus{
		h.checkStore(ctx),
		h.checkSessions(),
		h.checkMemory(),
		h.checkSystemResources(),
	}

	return &HealthResponse{
		Status:     h.determineOverallStatus(components),
		Timestamp:  time.Now(),
		Version:    h.version,
		Uptime:     formatUptime(time.Since(h.startTime)),
		Components: components,
		Summary: map[string]any{
			"total_components":     len(components),
			"healthy_components":   countComponentsByStatus(components, StatusHealthy),
			"degraded_components":  countComponentsByStatus(components, StatusDegraded),
			"unhealthy_components": countComponentsByStatus(components, StatusUnhealthy),
			"messages_per_second":  metrics.GetMessagesPerSecond(),
			"check_duration_ms":    time.Since(startTime).Milliseconds(),
		},
	}
}

func (h *HealthChecker) checkStore(ctx context.Context) *ComponentStatus {
	status := &ComponentStatus{
		Name:    "store",
		Details: map[string]any{"kind": h.cfg.Database.Store},
	}

	if err := h.store.Ping(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "Message store unreachable"
		status.Details["error"] = err.Error()
		return status
	}

	pool, ok := h.store.(PoolReporter)
	if !ok {
		status.Status = StatusHealthy
		status.Message = "Message store is healthy"
		return status
	}

	stats := pool.Stats()
	status.Details["total_conns"] = stats.TotalConns
	status.Details["acquired_conns"] = stats.AcquiredConns
	status.Details["idle_conns"] = stats.IdleConns
	status.Details["max_conns"] = stats.MaxConns

	utilization := 0.0
	if stats.MaxConns > 0 {
		utilization = float64(stats.AcquiredConns) / float64(stats.MaxConns) * 100
	}
	status.Details["connection_utilization_percent"] = utilization

	switch {
	case utilization > 95:
		status.Status = StatusUnhealthy
		status.Message = "Critical database connection utilization"
	case utilization > 90:
		status.Status = StatusDegraded
		status.Message = "High database connection utilization"
	default:
		status.Status = StatusHealthy
		status.Message = "Database is healthy"
	}
	return status
}

func (h *HealthChecker) checkSessions() *ComponentStatus {
	status := &ComponentStatus{
		Name:    "sessions",
		Details: make(map[string]any),
	}

	sessions := h.chat.SessionCount()
	maxSessions := h.cfg.Server.MaxConnections
	if maxSessions <= 0 {
		maxSessions = 1
	}
	utilization := float64(sessions) / float64(maxSessions) * 100

	status.Details["active_sessions"] = sessions
	status.Details["active_rooms"] = h.chat.RoomCount()
	status.Details["max_connections"] = maxSessions
	status.Details["connection_utilization_percent"] = utilization

	switch {
	case utilization >= 100:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("Connection limit reached: %d/%d", sessions, maxSessions)
	case utilization > 90:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("High connection utilization: %d/%d (%.1f%%)", sessions, maxSessions, utilization)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("Connection count normal: %d/%d (%.1f%%)", sessions, maxSessions, utilization)
	}
	return status
}

func (h *HealthChecker) checkMemory() *ComponentStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	allocMB := float64(m.Alloc) / 1024 / 1024
	status := &ComponentStatus{
		Name: "memory",
		Details: map[string]any{
			"alloc_mb":        allocMB,
			"sys_mb":          float64(m.Sys) / 1024 / 1024,
			"heap_mb":         float64(m.HeapAlloc) / 1024 / 1024,
			"num_gc":          m.NumGC,
			"gc_cpu_fraction": m.GCCPUFraction,
		},
	}

	switch {
	case allocMB > memoryCriticalMB:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High memory usage: %.1f MB", allocMB)
	case allocMB > memoryWarningMB:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated memory usage: %.1f MB", allocMB)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("Memory usage normal: %.1f MB", allocMB)
	}
	return status
}

func (h *HealthChecker) checkSystemResources() *ComponentStatus {
	goroutines := runtime.NumGoroutine()
	status := &ComponentStatus{
		Name: "system",
		Details: map[string]any{
			"goroutines": goroutines,
			"cpus":       runtime.NumCPU(),
		},
	}

	// Every session runs two goroutines.
	switch {
	case goroutines > goroutineCritical:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High goroutine count: %d", goroutines)
	case goroutines > goroutineWarning:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated goroutine count: %d", goroutines)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("System resources normal: %d goroutines", goroutines)
	}
	return status
}

func (h *HealthChecker) determineOverallStatus(components []*ComponentStatus) HealthStatus {
	overall := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

func countComponentsByStatus(components []*ComponentStatus, status HealthStatus) int {
	count := 0
	for _, comp := range components {
		if comp.Status == status {
			count++
		}
	}
	return count
}

// formatUptime formats uptime duration as a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// HandleHealth serves the health report. Only unhealthy maps to 503, so a
// degraded node still passes liveness and readiness (?ready=1) probes.
func (h *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.HealthCheckTimeout*time.Second)
	defer cancel()

	resp := h.CheckHealth(ctx)

	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
		return
	}

	h.logger.Debug("Health check completed",
		zap.String("status", string(resp.Status)),
		zap.Int("status_code", statusCode),
		zap.Bool("readiness", r.URL.Query().Get("ready") == "1"),
		zap.String("client_ip", r.RemoteAddr))
}
