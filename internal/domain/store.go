package domain

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownUser is returned by a MessageStore when the sender has no user row.
var ErrUnknownUser = errors.New("unknown user")

// ErrUnknownRoom is returned by a MessageStore when the room has no chats row.
// Rooms are provisioned outside the chat server.
var ErrUnknownRoom = errors.New("unknown room")

// StoredMessage is the durable record produced by MessageStore.Append.
type StoredMessage struct {
	ID        int64
	RoomID    int64
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// MessageStore persists chat messages. Append must not return until the
// message is durable.
type MessageStore interface {
	Append(ctx context.Context, roomID int64, senderID string, content string) (StoredMessage, error)
	Ping(ctx context.Context) error
	Close()
}
