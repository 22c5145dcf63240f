package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "config-test-secret-0123456789"

func withSecret(t *testing.T) {
	t.Helper()
	t.Setenv("ROOMCHAT_AUTH_SECRET", testSecret)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRead_Defaults(t *testing.T) {
	withSecret(t)
	path := writeConfig(t, "general:\n  NAME: roomchat\n")

	cfg, err := Read(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.WSAddr)
	assert.Equal(t, 256, cfg.Chat.QueueDepth)
	assert.Equal(t, 250*time.Millisecond, cfg.Chat.SendTimeout)
	assert.True(t, cfg.Chat.Presence)
	assert.Equal(t, "postgres", cfg.Database.Store)
	assert.Equal(t, "HS256", cfg.Auth.Algorithm)
	assert.Equal(t, testSecret, cfg.Auth.Secret)
	assert.False(t, cfg.Auth.AllowQueryToken)
}

func TestRead_SecretHasNoDefault(t *testing.T) {
	t.Setenv("ROOMCHAT_AUTH_SECRET", "")
	path := writeConfig(t, "general:\n  NAME: roomchat\n")

	_, err := Read(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Auth.Secret is required")
}

func TestRead_SecretFromFile(t *testing.T) {
	t.Setenv("ROOMCHAT_AUTH_SECRET", "")
	path := writeConfig(t, "auth:\n  SECRET: file-secret-0123456789\n")

	cfg, err := Read(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.Secret)
}

func TestRead_FileOverridesDefaults(t *testing.T) {
	withSecret(t)
	path := writeConfig(t, `
chat:
  QUEUE_DEPTH: 8
  SEND_TIMEOUT: 20ms
database:
  STORE: memory
`)

	cfg, err := Read(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Chat.QueueDepth)
	assert.Equal(t, 20*time.Millisecond, cfg.Chat.SendTimeout)
	assert.Equal(t, "memory", cfg.Database.Store)
}

func TestRead_EnvOverridesFile(t *testing.T) {
	withSecret(t)
	path := writeConfig(t, "chat:\n  QUEUE_DEPTH: 8\n")
	t.Setenv("ROOMCHAT_CHAT_QUEUE_DEPTH", "32")

	cfg, err := Read(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Chat.QueueDepth)
}

func TestRead_UnknownKeyRejected(t *testing.T) {
	withSecret(t)
	path := writeConfig(t, "chat:\n  QUEUE_DEPHT: 8\n")

	_, err := Read(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal config")
}

func TestRead_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		secret  string
		wantMsg string
	}{
		{
			name:    "bad listen address",
			body:    "server:\n  WS_ADDR: \"nope\"\n",
			wantMsg: "listen address",
		},
		{
			name:    "send timeout out of range",
			body:    "chat:\n  SEND_TIMEOUT: 5m\n",
			wantMsg: "between 1 millisecond and 1 minute",
		},
		{
			name:    "pong wait shorter than ping",
			body:    "server:\n  PING_INTERVAL: 30s\n  PONG_WAIT: 10s\n",
			wantMsg: "longer than the ping interval",
		},
		{
			name:    "metrics port collides with ws port",
			body:    "server:\n  WS_ADDR: \":9000\"\nmetrics:\n  PORT: 9000\n",
			wantMsg: "metrics port conflicts",
		},
		{
			name:    "short secret",
			body:    "general:\n  NAME: roomchat\n",
			secret:  "short",
			wantMsg: "Secret must be at least 16",
		},
		{
			name:    "bad trusted proxy",
			body:    "server:\n  TRUSTED_PROXIES: [\"10.0.0.0/8\", \"proxy.local\"]\n",
			wantMsg: "must be an IP address or CIDR",
		},
		{
			name:    "unknown store",
			body:    "database:\n  STORE: mongo\n",
			wantMsg: "must be one of [postgres memory]",
		},
		{
			name:    "non-postgres url",
			body:    "database:\n  URL: \"mysql://localhost/chat\"\n",
			wantMsg: "postgres://",
		},
		{
			name:    "message longer than frame",
			body:    "server:\n  MAX_FRAME_BYTES: 1024\nchat:\n  MAX_MESSAGE_LENGTH: 2048\n",
			wantMsg: "MAX_FRAME_BYTES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withSecret(t)
			if tt.secret != "" {
				t.Setenv("ROOMCHAT_AUTH_SECRET", tt.secret)
			}
			_, err := Read(writeConfig(t, tt.body), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("url wins", func(t *testing.T) {
		d := DatabaseConfig{URL: "postgres://a@b/c", Server: "ignored"}
		assert.Equal(t, "postgres://a@b/c", d.DSN())
	})

	t.Run("built from parts", func(t *testing.T) {
		d := DatabaseConfig{Server: "db", Port: 5433, User: "chat", Password: "pw", Name: "chat_db"}
		assert.Equal(t, "postgres://chat:pw@db:5433/chat_db?sslmode=disable", d.DSN())
	})
}
