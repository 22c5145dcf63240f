package chat

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/stretchr/testify/require"
)

/* ------------------------------------------------------------------ *
|  Channel                                                            |
* -------------------------------------------------------------------*/

type fakeChannel struct {
	inbound   chan string
	closed    chan struct{}
	peerOnce  sync.Once
	closeOnce sync.Once
	blockSend bool
	sendErr   error

	mu          sync.Mutex
	frames      [][]byte
	closeCode   int
	closeReason string
	closeCalls  int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		inbound: make(chan string, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeChannel) Receive(ctx context.Context) (string, error) {
	select {
	case text, ok := <-c.inbound:
		if !ok {
			return "", io.EOF
		}
		return text, nil
	case <-c.closed:
		return "", net.ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeChannel) Send(ctx context.Context, frame []byte) error {
	if c.blockSend {
		select {
		case <-c.closed:
		case <-ctx.Done():
		}
		return net.ErrClosed
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeChannel) Close(code int, reason string) error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeChannel) RemoteAddr() string { return "127.0.0.1:0" }

// say feeds one inbound frame as if the client sent it.
func (c *fakeChannel) say(text string) { c.inbound <- text }

// hangUp simulates a clean close from the client.
func (c *fakeChannel) hangUp() { c.peerOnce.Do(func() { close(c.inbound) }) }

func (c *fakeChannel) closedWith() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeChannel) envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeChannel) texts(t *testing.T, kind Kind) []string {
	t.Helper()
	var out []string
	for _, env := range c.envelopes(t) {
		if env.Kind == kind {
			out = append(out, env.Text)
		}
	}
	return out
}

/* ------------------------------------------------------------------ *
|  Member                                                             |
* -------------------------------------------------------------------*/

type stubMember struct {
	id      ConnID
	queue   chan []byte
	dead    atomic.Bool
	evicted chan error
}

func newStubMember(id string, depth int) *stubMember {
	return &stubMember{
		id:      ConnID(id),
		queue:   make(chan []byte, depth),
		evicted: make(chan error, 1),
	}
}

func (m *stubMember) ID() ConnID { return m.id }

func (m *stubMember) TryEnqueue(frame []byte) Outcome {
	if m.dead.Load() {
		return OutcomeDead
	}
	select {
	case m.queue <- frame:
		return OutcomeDelivered
	default:
		return OutcomeFull
	}
}

func (m *stubMember) Enqueue(ctx context.Context, frame []byte) Outcome {
	if o := m.TryEnqueue(frame); o != OutcomeFull {
		return o
	}
	select {
	case m.queue <- frame:
		return OutcomeDelivered
	case <-ctx.Done():
		return OutcomeFull
	}
}

func (m *stubMember) Evict(reason error) {
	m.dead.Store(true)
	select {
	case m.evicted <- reason:
	default:
	}
}

/* ------------------------------------------------------------------ *
|  Store                                                              |
* -------------------------------------------------------------------*/

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	fail   error
	saved  []domain.StoredMessage
}

func (s *fakeStore) Append(_ context.Context, roomID int64, senderID, content string) (domain.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return domain.StoredMessage{}, s.fail
	}
	s.nextID++
	msg := domain.StoredMessage{
		ID:        s.nextID,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.saved = append(s.saved, msg)
	return msg, nil
}

func (s *fakeStore) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close()                     {}

/* ------------------------------------------------------------------ *
|  Helpers                                                            |
* -------------------------------------------------------------------*/

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		QueueDepth:       16,
		SendTimeout:      50 * time.Millisecond,
		WriteTimeout:     time.Second,
		StoreTimeout:     time.Second,
		MaxMessageLength: 64,
		Presence:         true,
	}
}

// join establishes and serves a session, returning it with its channel.
func join(t *testing.T, h *Hub, room int64, name string) (*Session, *fakeChannel) {
	t.Helper()
	ch := newFakeChannel()
	s, err := h.Establish(context.Background(), ch, room, domain.Identity{Subject: name})
	require.NoError(t, err)

	go func() { _ = s.Serve(context.Background()) }()
	t.Cleanup(func() {
		s.Evict(ErrShuttingDown)
		<-s.Done()
	})
	return s, ch
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func count(list []string, want string) int {
	n := 0
	for _, s := range list {
		if s == want {
			n++
		}
	}
	return n
}
