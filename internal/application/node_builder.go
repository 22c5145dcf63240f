package application

import (
	"context"
	"fmt"

	"github.com/Shugur-Network/roomchat/internal/auth"
	"github.com/Shugur-Network/roomchat/internal/chat"
	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/constants"
	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/Shugur-Network/roomchat/internal/errors"
	"github.com/Shugur-Network/roomchat/internal/health"
	"github.com/Shugur-Network/roomchat/internal/logger"
	"github.com/Shugur-Network/roomchat/internal/server"
	"github.com/Shugur-Network/roomchat/internal/storage"
	"go.uber.org/zap"
)

// NodeBuilder is used to incrementally construct a Node instance.
type NodeBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	database      *storage.DB
	store         domain.MessageStore
	verifier      *auth.Verifier
	hub           *chat.Hub
	healthChecker *health.HealthChecker
	server        *server.Server
}

// NewNodeBuilder creates a new NodeBuilder with its own cancelable context.
func NewNodeBuilder(ctx context.Context, cfg *config.Config) *NodeBuilder {
	c, cancel := context.WithCancel(ctx)
	return &NodeBuilder{
		ctx:    c,
		cancel: cancel,
		config: cfg,
	}
}

// WithStore injects a ready store, skipping BuildStore's database setup.
func (b *NodeBuilder) WithStore(store domain.MessageStore) *NodeBuilder {
	b.store = store
	return b
}

// BuildStore opens the configured message store. For postgres it connects
// with retries and, when MIGRATE is set, creates missing tables.
func (b *NodeBuilder) BuildStore() error {
	if b.store != nil {
		return nil
	}

	if b.config.Database.Store == "memory" {
		logger.Warn("Using the in-memory message store; history is lost on restart")
		b.store = storage.NewMemoryStore()
		return nil
	}

	logger.Info("Building database connection",
		zap.String("server", b.config.Database.Server),
		zap.Int("port", b.config.Database.Port),
		zap.String("database", b.config.Database.Name))

	db, err := storage.InitDB(b.ctx, b.config.Database.DSN(), constants.DBMaxConns)
	if err != nil {
		return errors.DatabaseError("connect", err)
	}

	if b.config.Database.Migrate {
		if err := db.InitializeSchema(b.ctx); err != nil {
			db.Close()
			return errors.DatabaseError("initialize schema", err)
		}
	}

	b.database = db
	b.store = storage.NewPostgresStore(db)
	return nil
}

// BuildVerifier prepares the bearer-token verifier.
func (b *NodeBuilder) BuildVerifier() error {
	v, err := auth.NewVerifier(b.config.Auth)
	if err != nil {
		return errors.ConfigurationError("auth", err.Error())
	}
	b.verifier = v
	return nil
}

// BuildHub creates the chat hub over the store.
func (b *NodeBuilder) BuildHub() {
	b.hub = chat.NewHub(b.config.Chat, b.store,
		chat.WithLogger(logger.L()),
		chat.WithMaxSessions(b.config.Server.MaxConnections))
	logger.Debug("Chat hub ready",
		zap.Int("queue_depth", b.config.Chat.QueueDepth),
		zap.Duration("send_timeout", b.config.Chat.SendTimeout),
		zap.Bool("presence", b.config.Chat.Presence))
}

// BuildHealth wires the /health checker.
func (b *NodeBuilder) BuildHealth() {
	var store health.StoreInterface = b.store
	if pg, ok := b.store.(*storage.PostgresStore); ok {
		store = pgHealthAdapter{store: pg}
	}
	b.healthChecker = health.NewHealthChecker(store, b.hub, b.config, logger.L(), config.Version)
}

// BuildServer creates the WebSocket server.
func (b *NodeBuilder) BuildServer() {
	b.server = server.NewServer(b.config, b.hub, b.verifier, b.healthChecker, logger.L())
}

// Build assembles the Node.
func (b *NodeBuilder) Build() (*Node, error) {
	if b.store == nil || b.hub == nil || b.server == nil {
		b.cancel()
		return nil, fmt.Errorf("node builder: store, hub and server must be built first")
	}
	return &Node{
		ctx:           b.ctx,
		cancel:        b.cancel,
		config:        b.config,
		db:            b.database,
		store:         b.store,
		verifier:      b.verifier,
		hub:           b.hub,
		healthChecker: b.healthChecker,
		server:        b.server,
		serverDone:    make(chan struct{}),
	}, nil
}
