package application

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Shugur-Network/roomchat/internal/auth"
	"github.com/Shugur-Network/roomchat/internal/chat"
	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/Shugur-Network/roomchat/internal/health"
	"github.com/Shugur-Network/roomchat/internal/logger"
	"github.com/Shugur-Network/roomchat/internal/metrics"
	"github.com/Shugur-Network/roomchat/internal/server"
	"github.com/Shugur-Network/roomchat/internal/storage"
	"go.uber.org/zap"
)

// metricsSyncInterval is how often the session gauge is reconciled with the hub.
const metricsSyncInterval = 30 * time.Second

// Node ties together the components needed to run the chat server.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc

	config        *config.Config
	db            *storage.DB
	store         domain.MessageStore
	verifier      *auth.Verifier
	hub           *chat.Hub
	healthChecker *health.HealthChecker
	server        *server.Server

	serverDone chan struct{}
	startTime  time.Time
}

// New creates and configures a Node using the NodeBuilder pattern.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	return build(NewNodeBuilder(ctx, cfg))
}

func build(builder *NodeBuilder) (*Node, error) {
	if err := builder.BuildStore(); err != nil {
		builder.cancel()
		return nil, fmt.Errorf("failed building store: %w", err)
	}
	if err := builder.BuildVerifier(); err != nil {
		builder.cancel()
		if builder.store != nil {
			builder.store.Close()
		}
		return nil, fmt.Errorf("failed building verifier: %w", err)
	}
	builder.BuildHub()
	builder.BuildHealth()
	builder.BuildServer()

	node, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build node: %w", err)
	}
	return node, nil
}

// Start binds the WebSocket listener and serves in the background. It
// returns once the listener is bound.
func (n *Node) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.config.Server.WSAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.config.Server.WSAddr, err)
	}
	return n.StartOn(ctx, ln)
}

// StartOn is Start with a caller-provided listener.
func (n *Node) StartOn(ctx context.Context, ln net.Listener) error {
	n.startTime = time.Now()
	metrics.RegisterMetrics()

	if n.config.Metrics.Enabled {
		go func() {
			if err := server.ServeMetrics(n.ctx, n.config.Metrics.Port, logger.L()); err != nil {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	go n.syncMetrics()

	go func() {
		defer close(n.serverDone)
		if err := n.server.Serve(n.ctx, ln); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Node started",
		zap.String("ws_addr", ln.Addr().String()),
		zap.String("store", n.config.Database.Store))
	return nil
}

// Shutdown stops the server, waits for every session to close and then
// releases the store.
func (n *Node) Shutdown() {
	logger.Info("Initiating graceful shutdown...")
	timeout := n.config.General.ShutdownTimeout

	n.cancel()

	if !n.startTime.IsZero() {
		select {
		case <-n.serverDone:
			logger.Debug("WebSocket server stopped")
		case <-time.After(timeout + time.Second):
			logger.Warn("Server shutdown timed out", zap.Duration("timeout", timeout))
		}
	}

	n.store.Close()
	logger.Info("Node shutdown completed",
		zap.Int("remaining_sessions", n.hub.SessionCount()),
		zap.Duration("uptime", time.Since(n.startTime)))
}

// Done is closed once the server has stopped serving.
func (n *Node) Done() <-chan struct{} { return n.serverDone }

func (n *Node) syncMetrics() {
	ticker := time.NewTicker(metricsSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			metrics.SyncActiveSessionsCount(int64(n.hub.SessionCount()))
			metrics.ActiveRooms.Set(float64(n.hub.RoomCount()))
		}
	}
}
