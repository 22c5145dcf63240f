package domain

import "context"

// Channel is one bidirectional client connection carrying text frames.
// Receive and Send may be called from different goroutines, but each of
// them from at most one goroutine at a time.
type Channel interface {
	// Receive blocks for the next inbound text frame. It returns io.EOF
	// when the peer closed the connection cleanly.
	Receive(ctx context.Context) (string, error)

	// Send writes one text frame.
	Send(ctx context.Context, frame []byte) error

	// Close sends a close frame with code and reason and releases the
	// connection. Calling it more than once is safe.
	Close(code int, reason string) error

	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}
