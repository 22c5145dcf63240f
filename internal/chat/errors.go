package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRegistered is returned when a connection ID is already a member of a room.
	ErrAlreadyRegistered = errors.New("connection already registered")

	// ErrSlowConsumer closes a session whose outbound queue stayed full past the send timeout.
	ErrSlowConsumer = errors.New("slow consumer")

	// ErrSessionClosed is returned when operating on a session that has already been served or closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrPeerClosed records a clean close initiated by the client.
	ErrPeerClosed = errors.New("peer closed connection")

	// ErrShuttingDown is returned by Establish once the hub is shutting down.
	ErrShuttingDown = errors.New("hub shutting down")

	// ErrHubFull is returned by Establish when the session limit is reached.
	ErrHubFull = errors.New("session limit reached")
)

// StoreError reports a failed MessageStore.Append. The session stays open.
type StoreError struct {
	Room int64
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store message in room %d: %v", e.Room, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// TransportError is fatal to the one session it occurred on.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
