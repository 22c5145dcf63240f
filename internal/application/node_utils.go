package application

import (
	"context"
	"time"

	"github.com/Shugur-Network/roomchat/internal/chat"
	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/Shugur-Network/roomchat/internal/health"
	"github.com/Shugur-Network/roomchat/internal/storage"
)

// DB returns the node's database, or nil for the memory store.
func (n *Node) DB() *storage.DB {
	return n.db
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	return n.config
}

// Hub returns the chat hub.
func (n *Node) Hub() *chat.Hub {
	return n.hub
}

// Store returns the message store.
func (n *Node) Store() domain.MessageStore {
	return n.store
}

// StartTime returns when Start was called.
func (n *Node) StartTime() time.Time {
	return n.startTime
}

// pgHealthAdapter exposes pool stats to the health checker.
type pgHealthAdapter struct {
	store *storage.PostgresStore
}

func (a pgHealthAdapter) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

func (a pgHealthAdapter) Stats() health.DatabaseStats {
	s := a.store.DB().Stats()
	return health.DatabaseStats{
		TotalConns:    s.TotalConns,
		AcquiredConns: s.AcquiredConns,
		IdleConns:     s.IdleConns,
		MaxConns:      s.MaxConns,
	}
}
