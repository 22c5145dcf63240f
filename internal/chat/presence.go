package chat

import (
	"context"
	"fmt"

	"github.com/Shugur-Network/roomchat/internal/constants"
)

// Presence turns session join/leave into presence envelopes.
type Presence struct {
	broadcaster *Broadcaster
	enabled     bool
}

// NewPresence returns a notifier publishing through b. When enabled is false
// Join and Leave do nothing.
func NewPresence(b *Broadcaster, enabled bool) *Presence {
	return &Presence{broadcaster: b, enabled: enabled}
}

// Join announces conn to room. The joining connection is already a member
// and receives its own notice.
func (p *Presence) Join(ctx context.Context, room int64, conn ConnID, name string) DeliveryReport {
	return p.publish(ctx, room, conn, fmt.Sprintf("%s joined the chat", displayName(name)))
}

// Leave announces that conn has left room. Call it once per joined session,
// after the session is unregistered.
func (p *Presence) Leave(ctx context.Context, room int64, conn ConnID, name string) DeliveryReport {
	return p.publish(ctx, room, conn, fmt.Sprintf("%s left the chat", displayName(name)))
}

func (p *Presence) publish(ctx context.Context, room int64, conn ConnID, text string) DeliveryReport {
	if !p.enabled {
		return DeliveryReport{Room: room}
	}
	return p.broadcaster.Publish(ctx, Envelope{
		Room:         room,
		Text:         text,
		Kind:         KindPresence,
		ConnectionID: conn,
	})
}

func displayName(name string) string {
	if name == "" {
		return constants.AnonymousName
	}
	return name
}
