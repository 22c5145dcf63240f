package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Shugur-Network/roomchat/internal/constants"
	"github.com/Shugur-Network/roomchat/internal/domain"
	apperrors "github.com/Shugur-Network/roomchat/internal/errors"
	"github.com/Shugur-Network/roomchat/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is a session's lifecycle position. It only moves forward.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session owns one client connection in one room.
//
// Frames for the client go through a bounded queue drained by a single
// writer goroutine, so the channel is never written concurrently. The queue
// is never closed; enqueuers check the state under mu instead.
type Session struct {
	id       ConnID
	room     int64
	identity domain.Identity
	channel  domain.Channel
	hub      *Hub
	limiter  *rate.Limiter
	logger   *zap.Logger

	outbound chan []byte
	closing  chan struct{}
	done     chan struct{}

	mu     sync.RWMutex
	state  State
	reason error
	joined bool

	served    sync.Once
	leaveOnce sync.Once
}

func newSession(h *Hub, id ConnID, room int64, identity domain.Identity, ch domain.Channel) *Session {
	s := &Session{
		id:       id,
		room:     room,
		identity: identity,
		channel:  ch,
		hub:      h,
		outbound: make(chan []byte, h.cfg.QueueDepth),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		logger: h.logger.With(
			zap.String("conn_id", string(id)),
			zap.Int64("room", room),
			zap.String("user", identity.Subject),
			zap.String("remote_addr", ch.RemoteAddr()),
		),
	}
	if rl := h.cfg.RateLimit; rl.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(rl.MessagesPerSecond), rl.Burst)
	}
	return s
}

// ID returns the connection ID.
func (s *Session) ID() ConnID { return s.id }

// Room returns the room the session belongs to.
func (s *Session) Room() int64 { return s.room }

// Identity returns the authenticated principal.
func (s *Session) Identity() domain.Identity { return s.identity }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns why the session began closing, or nil while it is open.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

// TryEnqueue implements Member.
func (s *Session) TryEnqueue(frame []byte) Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state >= StateClosing {
		return OutcomeDead
	}
	select {
	case s.outbound <- frame:
		return OutcomeDelivered
	default:
		return OutcomeFull
	}
}

// Enqueue implements Member.
func (s *Session) Enqueue(ctx context.Context, frame []byte) Outcome {
	if o := s.TryEnqueue(frame); o != OutcomeFull {
		return o
	}
	select {
	case s.outbound <- frame:
		// The writer stops draining once closing starts.
		if s.State() >= StateClosing {
			return OutcomeDead
		}
		return OutcomeDelivered
	case <-s.closing:
		return OutcomeDead
	case <-ctx.Done():
		return OutcomeFull
	}
}

// Evict implements Member.
func (s *Session) Evict(reason error) {
	s.shutdown(reason)
}

// markJoined moves Connecting to Joined. It fails if the session was closed
// in between.
func (s *Session) markJoined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.state = StateJoined
	s.joined = true
	return true
}

// shutdown starts closing. Only the first call has any effect. It never blocks
// on I/O, so it is safe to call from another session's publish.
func (s *Session) shutdown(reason error) bool {
	s.mu.Lock()
	if s.state >= StateClosing {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosing
	s.reason = reason
	close(s.closing)
	s.mu.Unlock()

	s.hub.registry.Unregister(s)
	return true
}

func (s *Session) finish() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	close(s.done)
}

// Serve runs the session until it is closed and returns the reason it closed.
// It returns ErrSessionClosed if called more than once.
func (s *Session) Serve(ctx context.Context) error {
	ran := false
	s.served.Do(func() {
		ran = true
		if s.State() == StateClosed {
			return
		}
		s.run(ctx)
	})
	if !ran {
		return ErrSessionClosed
	}
	return s.Err()
}

func (s *Session) run(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop(loopCtx)
	}()
	go func() {
		defer wg.Done()
		s.readLoop(loopCtx)
	}()

	select {
	case <-s.closing:
	case <-ctx.Done():
		s.shutdown(ErrShuttingDown)
	}

	reason := s.Err()
	code, text := closeStatus(reason)
	if err := s.channel.Close(code, text); err != nil {
		s.logger.Debug("Channel close failed", zap.Error(err))
	}
	cancel()
	wg.Wait()

	s.hub.forget(s)
	s.fireLeave(context.WithoutCancel(ctx))

	s.finish()
	metrics.SessionClosed(closeLabel(reason))
	s.logger.Info("Session closed", zap.String("reason", reasonText(reason)))
}

// fireLeave emits the leave notice at most once, and only for sessions that joined.
func (s *Session) fireLeave(ctx context.Context) {
	s.mu.RLock()
	joined := s.joined
	s.mu.RUnlock()
	if !joined {
		return
	}
	s.leaveOnce.Do(func() {
		s.hub.presence.Leave(ctx, s.room, s.id, s.identity.Name())
	})
}

func (s *Session) writeLoop(ctx context.Context) {
	defer s.recoverLoop("send")

	for {
		select {
		case <-s.closing:
			return
		case <-ctx.Done():
			return
		case frame := <-s.outbound:
			sendCtx, cancel := context.WithTimeout(ctx, s.hub.cfg.WriteTimeout)
			err := s.channel.Send(sendCtx, frame)
			cancel()
			if err != nil {
				s.shutdown(&TransportError{Op: "send", Err: err})
				return
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) {
	defer s.recoverLoop("receive")

	for {
		text, err := s.channel.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.shutdown(ErrPeerClosed)
			} else {
				s.shutdown(&TransportError{Op: "receive", Err: err})
			}
			return
		}
		if s.State() >= StateClosing {
			return
		}
		s.handleInbound(ctx, text)
	}
}

func (s *Session) recoverLoop(op string) {
	if r := recover(); r != nil {
		s.logger.Error("Recovered panic in session loop",
			zap.String("op", op),
			zap.Any("panic", r),
			zap.Stack("stack"))
		s.shutdown(&TransportError{Op: op, Err: fmt.Errorf("panic: %v", r)})
	}
}

// handleInbound validates, stores and publishes one client frame. Failures
// are reported to this session only.
func (s *Session) handleInbound(ctx context.Context, text string) {
	cfg := s.hub.cfg

	if strings.TrimSpace(text) == "" {
		s.reject("empty", apperrors.MessageRejectedError("EMPTY_MESSAGE", "Message is empty."))
		return
	}
	if utf8.RuneCountInString(text) > cfg.MaxMessageLength {
		s.reject("too_long", apperrors.MessageRejectedError("MESSAGE_TOO_LONG",
			fmt.Sprintf("Message exceeds %d characters.", cfg.MaxMessageLength)))
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.reject("rate_limited", apperrors.RateLimitError())
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	stored, err := s.hub.store.Append(storeCtx, s.room, s.identity.Subject, text)
	cancel()
	if err != nil {
		storeErr := &StoreError{Room: s.room, Err: err}
		s.logger.Warn("Failed to store message", zap.Error(storeErr))
		s.reject("store", apperrors.DatabaseError("append", storeErr))
		return
	}
	metrics.MessagesReceived.Inc()

	s.hub.broadcaster.Publish(context.WithoutCancel(ctx), Envelope{
		Room:         s.room,
		Text:         text,
		Kind:         KindMessage,
		Sender:       s.identity.Name(),
		MessageID:    stored.ID,
		SentAt:       stored.CreatedAt,
		ConnectionID: s.id,
	})
}

// reject queues an error envelope for this client without blocking.
func (s *Session) reject(reason string, appErr *apperrors.AppError) {
	metrics.MessagesRejected.WithLabelValues(reason).Inc()
	metrics.IncrementErrorCount(string(appErr.Type))

	frame, err := Envelope{Room: s.room, Text: appErr.UserMessage, Kind: KindError}.Marshal()
	if err != nil {
		return
	}
	if s.TryEnqueue(frame) != OutcomeDelivered {
		s.logger.Debug("Dropped error envelope", zap.String("code", appErr.Code))
	}
}

func closeStatus(reason error) (int, string) {
	var te *TransportError
	switch {
	case reason == nil, errors.Is(reason, ErrPeerClosed):
		return constants.CloseNormal, constants.ReasonClientClosed
	case errors.Is(reason, ErrShuttingDown):
		return constants.CloseGoingAway, constants.ReasonShutdown
	case errors.Is(reason, ErrSlowConsumer):
		return constants.ClosePolicyViolation, constants.ReasonSlowConsumer
	case errors.Is(reason, ErrAlreadyRegistered):
		return constants.ClosePolicyViolation, constants.ReasonDuplicateID
	case errors.Is(reason, ErrHubFull):
		return constants.CloseTryAgainLater, constants.ReasonAtCapacity
	case errors.As(reason, &te):
		return constants.CloseInternalError, constants.ReasonTransportFailed
	default:
		return constants.CloseInternalError, reason.Error()
	}
}

func closeLabel(reason error) string {
	switch {
	case reason == nil, errors.Is(reason, ErrPeerClosed):
		return "client"
	case errors.Is(reason, ErrShuttingDown):
		return "shutdown"
	case errors.Is(reason, ErrSlowConsumer):
		return "slow_consumer"
	case errors.Is(reason, ErrAlreadyRegistered):
		return "duplicate"
	case errors.Is(reason, ErrHubFull):
		return "capacity"
	default:
		return "transport"
	}
}

func reasonText(reason error) string {
	if reason == nil {
		return "none"
	}
	return reason.Error()
}
