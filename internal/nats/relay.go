package nats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/brightpath-edu/tutoring-platform/internal/transport"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
)

// SubjectPrefix is the prefix for all session broadcast subjects.
const SubjectPrefix = "session"

// Relay fans session broadcasts out to the other instances over core
// NATS pub/sub. Each instance publishes the frames it originates and
// subscribes to the frames of everyone else; the hub drops frames
// carrying its own origin.
type Relay struct {
	client *Client
	sub    *nats.Subscription
	logger *logger.Logger
}

// NewRelay creates a relay on an established NATS connection.
func NewRelay(client *Client, log *logger.Logger) *Relay {
	return &Relay{client: client, logger: log}
}

// roomSubject maps a room name onto a NATS subject token. Room names
// use ":" separators so they stay a single token under the prefix.
func roomSubject(room string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, strings.ReplaceAll(room, ".", "_"))
}

// Publish sends an already-encoded broadcast frame for a room.
func (r *Relay) Publish(room string, data []byte) error {
	if err := r.client.Conn().Publish(roomSubject(room), data); err != nil {
		return fmt.Errorf("failed to publish relay frame: %w", err)
	}
	return nil
}

// Subscribe starts delivering frames from other instances to the hub.
func (r *Relay) Subscribe(hub *transport.Hub) error {
	sub, err := r.client.Conn().Subscribe(SubjectPrefix+".>", func(msg *nats.Msg) {
		var frame transport.RelayFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			r.logger.Warnw("dropping malformed relay frame", "subject", msg.Subject, "error", err)
			return
		}
		hub.DeliverRelayed(&frame)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to relay subjects: %w", err)
	}
	r.sub = sub
	return nil
}

// Active reports whether the relay is subscribed and receiving frames.
func (r *Relay) Active() bool {
	return r.sub != nil && r.sub.IsValid()
}

// Close unsubscribes from the relay subjects.
func (r *Relay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
}
