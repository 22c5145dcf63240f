package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Shugur-Network/roomchat/internal/auth"
	"github.com/Shugur-Network/roomchat/internal/chat"
	"github.com/Shugur-Network/roomchat/internal/config"
	apperrors "github.com/Shugur-Network/roomchat/internal/errors"
	"github.com/Shugur-Network/roomchat/internal/health"
	"github.com/Shugur-Network/roomchat/internal/limiter"
	"github.com/Shugur-Network/roomchat/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server accepts WebSocket upgrades on /ws/chat/{room} and hands each
// authenticated connection to the hub.
type Server struct {
	cfg           *config.Config
	hub           *chat.Hub
	verifier      *auth.Verifier
	healthChecker *health.HealthChecker
	limiter       *limiter.RateLimiter
	proxies       []netip.Prefix
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

// NewServer builds a server. healthChecker may be nil, in which case /health
// is not served.
func NewServer(cfg *config.Config, hub *chat.Hub, verifier *auth.Verifier, healthChecker *health.HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:           cfg,
		hub:           hub,
		verifier:      verifier,
		healthChecker: healthChecker,
		logger:        logger.Named("server"),
	}
	s.proxies = parseTrustedProxies(cfg.Server.TrustedProxies, s.logger)
	if cfg.Server.HandshakeLimit.Enabled {
		s.limiter = limiter.NewRateLimiter(cfg.Server.HandshakeLimit)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws/chat/{room}", apperrors.WrapHandler(s.handleChat))
	if s.healthChecker != nil {
		mux.HandleFunc("/health", s.healthChecker.HandleHealth)
	}
	return apperrors.NewErrorMiddleware().RecoveryMiddleware(mux)
}

// ListenAndServe serves until ctx is cancelled, then stops accepting
// connections and closes every session with a going-away status.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.WSAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.WSAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Server.HandshakeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	if s.limiter != nil {
		go s.limiter.Run(ctx.Done(), time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("WebSocket server listening", zap.String("address", ln.Addr().String()))
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down WebSocket server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.General.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.hub.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) error {
	remote := clientIP(r, s.proxies)
	if s.limiter != nil && !s.limiter.Allow(remote) {
		metrics.HandshakesRejected.WithLabelValues("throttled").Inc()
		return apperrors.ConnectionThrottledError(remote)
	}

	rawRoom := r.PathValue("room")
	// Rooms key the INTEGER chats.id column.
	room, err := strconv.ParseInt(rawRoom, 10, 32)
	if err != nil || room <= 0 {
		metrics.HandshakesRejected.WithLabelValues("room").Inc()
		return apperrors.InvalidRoomError(rawRoom)
	}

	token, subprotocol := auth.TokenFromRequest(r, s.cfg.Auth.AllowQueryToken)
	identity, err := s.verifier.Verify(token)
	if err != nil {
		metrics.HandshakesRejected.WithLabelValues("auth").Inc()
		return apperrors.AuthenticationError(err.Error())
	}

	// Cheap early refusal; Establish enforces the cap atomically.
	if current, limit := s.hub.SessionCount(), s.cfg.Server.MaxConnections; current >= limit {
		metrics.HandshakesRejected.WithLabelValues("limit").Inc()
		return apperrors.ConnectionLimitError(current, limit)
	}

	var header http.Header
	if subprotocol != "" {
		header = http.Header{"Sec-Websocket-Protocol": []string{subprotocol}}
	}
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// The upgrader has already written an HTTP error.
		metrics.HandshakesRejected.WithLabelValues("upgrade").Inc()
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return nil
	}

	logger := s.logger.With(zap.String("client_ip", remote), zap.String("request_id", apperrors.RequestID(r.Context())))
	ch := newWSChannel(conn, s.cfg.Server, remote, logger)

	// The request context is never cancelled after a hijack; the hub's
	// Shutdown ends sessions instead.
	ctx := context.WithoutCancel(r.Context())
	session, err := s.hub.Establish(ctx, ch, room, identity)
	if err != nil {
		if errors.Is(err, chat.ErrHubFull) {
			metrics.HandshakesRejected.WithLabelValues("limit").Inc()
		}
		logger.Debug("Session not established", zap.Error(err))
		return nil
	}
	if err := session.Serve(ctx); err != nil {
		logger.Debug("Session ended", zap.String("conn_id", string(session.ID())), zap.Error(err))
	}
	return nil
}

// checkOrigin allows every origin when none are configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.ContainsFunc(allowed, func(o string) bool {
		return o == "*" || strings.EqualFold(o, origin)
	})
}
