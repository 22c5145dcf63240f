package chat

import (
	"encoding/json"
	"time"
)

// ConnID identifies one live connection for the lifetime of the process.
type ConnID string

// Kind tags what an envelope carries.
type Kind string

const (
	KindMessage  Kind = "message"
	KindPresence Kind = "presence"
	KindError    Kind = "error"
)

// Envelope is the frame pushed to room members. Room and Text are always
// present; the rest is omitted when empty.
type Envelope struct {
	Room         int64     `json:"room"`
	Text         string    `json:"text"`
	Kind         Kind      `json:"kind"`
	Sender       string    `json:"sender,omitempty"`
	MessageID    int64     `json:"message_id,omitempty"`
	SentAt       time.Time `json:"sent_at,omitzero"`
	ConnectionID ConnID    `json:"connection_id,omitempty"`
}

// Marshal encodes the envelope as a single text frame.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
