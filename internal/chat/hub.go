package chat

import (
	"context"
	"sync"

	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/Shugur-Network/roomchat/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub creates sessions and owns the registry, broadcaster and presence
// notifier they share.
type Hub struct {
	cfg         config.ChatConfig
	store       domain.MessageStore
	registry    *Registry
	broadcaster *Broadcaster
	presence    *Presence
	logger      *zap.Logger
	newID       func() ConnID
	maxSessions int

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithIDGenerator replaces the default UUIDv4 connection IDs.
func WithIDGenerator(gen func() ConnID) HubOption {
	return func(h *Hub) { h.newID = gen }
}

// WithLogger sets the hub's logger. The default discards everything.
func WithLogger(l *zap.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithMaxSessions caps the number of live sessions. Zero means no cap.
func WithMaxSessions(n int) HubOption {
	return func(h *Hub) { h.maxSessions = n }
}

// NewHub wires a registry, broadcaster and presence notifier around store.
func NewHub(cfg config.ChatConfig, store domain.MessageStore, opts ...HubOption) *Hub {
	h := &Hub{
		cfg:      cfg,
		store:    store,
		registry: NewRegistry(),
		logger:   zap.NewNop(),
		newID:    func() ConnID { return ConnID(uuid.NewString()) },
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("chat")
	h.broadcaster = NewBroadcaster(h.registry, cfg.SendTimeout, h.logger)
	h.presence = NewPresence(h.broadcaster, cfg.Presence)
	return h
}

// Registry returns the shared membership table.
func (h *Hub) Registry() *Registry { return h.registry }

// Broadcaster returns the shared broadcaster.
func (h *Hub) Broadcaster() *Broadcaster { return h.broadcaster }

// SessionCount returns the number of sessions that hold a slot: connecting or
// joined, and not yet closed.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int { return h.registry.RoomCount() }

// Establish registers a new session for ch in room and announces it. The
// caller must then run Serve.
//
// If the connection ID is already registered the channel is closed with a
// policy-violation status, the returned session is already Closed and the
// error wraps ErrAlreadyRegistered. When the session cap is reached the
// channel is closed with a try-again-later status and the error is
// ErrHubFull. No leave notice is ever sent for such a session.
func (h *Hub) Establish(ctx context.Context, ch domain.Channel, room int64, identity domain.Identity) (*Session, error) {
	s := newSession(h, h.newID(), room, identity, ch)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.abort(ErrShuttingDown)
		return s, ErrShuttingDown
	}
	if h.maxSessions > 0 && len(h.sessions) >= h.maxSessions {
		h.mu.Unlock()
		s.abort(ErrHubFull)
		metrics.SessionsClosed.WithLabelValues(closeLabel(ErrHubFull)).Inc()
		return s, ErrHubFull
	}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	if err := h.registry.Register(room, s); err != nil {
		h.forget(s)
		s.abort(err)
		metrics.SessionsClosed.WithLabelValues(closeLabel(err)).Inc()
		s.logger.Warn("Rejected connection", zap.Error(err))
		return s, err
	}

	if !s.markJoined() {
		// Shut down between Register and here.
		h.forget(s)
		s.abort(s.Err())
		return s, s.Err()
	}

	metrics.SessionOpened()
	metrics.ActiveRooms.Set(float64(h.registry.RoomCount()))
	s.logger.Info("Session joined")

	h.presence.Join(ctx, room, s.id, identity.Name())
	return s, nil
}

// abort takes a session that never ran straight to Closed.
func (s *Session) abort(reason error) {
	s.shutdown(reason)
	s.hub.registry.Unregister(s)
	code, text := closeStatus(s.Err())
	if err := s.channel.Close(code, text); err != nil {
		s.logger.Debug("Channel close failed", zap.Error(err))
	}
	s.finish()
}

func (h *Hub) forget(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	metrics.ActiveRooms.Set(float64(h.registry.RoomCount()))
}

// Shutdown closes every live session with a going-away status and waits for
// them to finish, or for ctx to be done. New sessions are refused.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	live := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()

	h.logger.Info("Closing sessions", zap.Int("count", len(live)))
	for _, s := range live {
		s.shutdown(ErrShuttingDown)
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
