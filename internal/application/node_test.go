package application

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/Shugur-Network/roomchat/internal/auth"
	"github.com/Shugur-Network/roomchat/internal/chat"
	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ROOMCHAT_DATABASE_STORE", "memory")
	t.Setenv("ROOMCHAT_METRICS_ENABLED", "false")
	t.Setenv("ROOMCHAT_AUTH_SECRET", "node-test-secret-0123456789")
	cfg, err := config.Read("", nil)
	require.NoError(t, err)
	cfg.General.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestNode_ServesAndShutsDown(t *testing.T) {
	cfg := memoryConfig(t)
	store := storage.NewMemoryStore()

	node, err := build(NewNodeBuilder(context.Background(), cfg).WithStore(store))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, node.StartOn(context.Background(), ln))

	verifier, err := auth.NewVerifier(cfg.Auth)
	require.NoError(t, err)
	token, err := verifier.Mint("alice", "Alice")
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/chat/5",
		http.Header{"Authorization": []string{"Bearer " + token}})
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env chat.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, chat.KindPresence, env.Kind)
	assert.Equal(t, "Alice joined the chat", env.Text)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "hello", env.Text)
	assert.Len(t, store.Messages(5), 1)

	health, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	node.Shutdown()

	select {
	case <-node.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Zero(t, node.Hub().SessionCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestNodeBuilder_RejectsBadAuthConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Auth.Algorithm = "none"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifier")
}
