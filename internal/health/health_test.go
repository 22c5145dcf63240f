package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct{ err error }

func (s stubStore) Ping(context.Context) error { return s.err }

type pooledStore struct {
	stubStore
	stats DatabaseStats
}

func (p pooledStore) Stats() DatabaseStats { return p.stats }

type stubChat struct{ sessions, rooms int }

func (c stubChat) SessionCount() int { return c.sessions }
func (c stubChat) RoomCount() int    { return c.rooms }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.MaxConnections = 10
	cfg.Database.Store = "memory"
	return cfg
}

func componentByName(t *testing.T, resp *HealthResponse, name string) *ComponentStatus {
	t.Helper()
	for _, c := range resp.Components {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("component %q missing", name)
	return nil
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name         string
		store        StoreInterface
		chat         stubChat
		wantStore    HealthStatus
		wantSessions HealthStatus
		wantOverall  HealthStatus
	}{
		{
			name:         "healthy memory store",
			store:        stubStore{},
			chat:         stubChat{sessions: 2, rooms: 1},
			wantStore:    StatusHealthy,
			wantSessions: StatusHealthy,
			wantOverall:  StatusHealthy,
		},
		{
			name:         "store unreachable",
			store:        stubStore{err: errors.New("connection refused")},
			chat:         stubChat{},
			wantStore:    StatusUnhealthy,
			wantSessions: StatusHealthy,
			wantOverall:  StatusUnhealthy,
		},
		{
			name:         "pool nearly exhausted",
			store:        pooledStore{stats: DatabaseStats{AcquiredConns: 19, MaxConns: 20}},
			chat:         stubChat{},
			wantStore:    StatusDegraded,
			wantSessions: StatusHealthy,
			wantOverall:  StatusDegraded,
		},
		{
			name:         "connection limit reached",
			store:        stubStore{},
			chat:         stubChat{sessions: 10, rooms: 3},
			wantStore:    StatusHealthy,
			wantSessions: StatusUnhealthy,
			wantOverall:  StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(tt.store, tt.chat, testConfig(), nil, "test")
			resp := h.CheckHealth(context.Background())

			assert.Equal(t, tt.wantStore, componentByName(t, resp, "store").Status)
			assert.Equal(t, tt.wantSessions, componentByName(t, resp, "sessions").Status)
			assert.Equal(t, tt.wantOverall, resp.Status)
			assert.Equal(t, "test", resp.Version)
		})
	}
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy is 200", func(t *testing.T) {
		h := NewHealthChecker(stubStore{}, stubChat{sessions: 1, rooms: 1}, testConfig(), nil, "test")
		rec := httptest.NewRecorder()
		h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, StatusHealthy, body.Status)
		assert.Len(t, body.Components, 4)
	})

	t.Run("unhealthy is 503", func(t *testing.T) {
		h := NewHealthChecker(stubStore{err: errors.New("down")}, stubChat{}, testConfig(), nil, "test")
		rec := httptest.NewRecorder()
		h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health?ready=1", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("post not allowed", func(t *testing.T) {
		h := NewHealthChecker(stubStore{}, stubChat{}, testConfig(), nil, "test")
		rec := httptest.NewRecorder()
		h.HandleHealth(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "42s", formatUptime(42*time.Second))
	assert.Equal(t, "3m 5s", formatUptime(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 0m 1s", formatUptime(2*time.Hour+time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
