package storage

import (
	"context"
	"sync"
	"time"

	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/Shugur-Network/roomchat/internal/metrics"
)

// MemoryStore keeps messages in process memory. Used with database.STORE=memory
// for local runs and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []domain.StoredMessage
	users    map[string]struct{}
	now      func() time.Time
}

// NewMemoryStore returns an empty store. When users is non-empty only those
// senders may append; otherwise anyone may.
func NewMemoryStore(users ...string) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	if len(users) > 0 {
		s.users = make(map[string]struct{}, len(users))
		for _, u := range users {
			s.users[u] = struct{}{}
		}
	}
	return s
}

// Append records the message with the next ID.
func (s *MemoryStore) Append(ctx context.Context, roomID int64, senderID, content string) (domain.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		metrics.StoreOperations.WithLabelValues("error").Inc()
		return domain.StoredMessage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users != nil {
		if _, ok := s.users[senderID]; !ok {
			metrics.StoreOperations.WithLabelValues("error").Inc()
			return domain.StoredMessage{}, domain.ErrUnknownUser
		}
	}

	s.nextID++
	msg := domain.StoredMessage{
		ID:        s.nextID,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	s.messages = append(s.messages, msg)
	metrics.StoreOperations.WithLabelValues("ok").Inc()
	return msg, nil
}

// Messages returns the stored messages for room in insertion order.
func (s *MemoryStore) Messages(roomID int64) []domain.StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.StoredMessage
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close()                     {}
