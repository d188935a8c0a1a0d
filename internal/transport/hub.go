// Package transport implements the real-time session protocol: channel
// membership, event routing, and broadcast over WebSocket connections.
package transport

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
	"github.com/brightpath-edu/tutoring-platform/pkg/metrics"
)

// Relay mirrors broadcasts to other transport instances. Implemented by the
// NATS relay; nil disables cross-instance fan-out.
type Relay interface {
	Publish(room string, data []byte) error
}

// RelayFrame is the cross-instance wire format. Data holds the already
// encoded client envelope so receiving instances deliver it verbatim.
type RelayFrame struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
}

// Envelope is the client wire format for server-originated events.
type Envelope struct {
	Type    string          `json:"type"`
	AckID   string          `json:"ack_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub tracks channel membership and delivers broadcasts. It implements
// service.Broadcaster.
type Hub struct {
	id    string
	relay Relay
	log   *logger.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

// NewHub creates a hub with a unique instance identity.
func NewHub(relay Relay, log *logger.Logger) *Hub {
	return &Hub{
		id:    uuid.NewString(),
		relay: relay,
		log:   log,
		rooms: make(map[string]map[*Conn]struct{}),
	}
}

// ID returns the hub's instance identity, used to skip self-relayed frames.
func (h *Hub) ID() string {
	return h.id
}

// Join adds a connection to a room.
func (h *Hub) Join(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	if _, joined := members[c]; !joined {
		members[c] = struct{}{}
		c.track(room)
		metrics.ChannelMembers.WithLabelValues(roomKind(room)).Inc()
	}
}

// Leave removes a connection from a room.
func (h *Hub) Leave(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, c)
}

// Drop removes a connection from every room it joined. Called on disconnect.
func (h *Hub) Drop(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.joinedRooms() {
		h.leaveLocked(room, c)
	}
}

func (h *Hub) leaveLocked(room string, c *Conn) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, joined := members[c]; !joined {
		return
	}
	delete(members, c)
	c.untrack(room)
	metrics.ChannelMembers.WithLabelValues(roomKind(room)).Dec()
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast delivers an event to every local member of a room and mirrors
// it to other instances through the relay.
func (h *Hub) Broadcast(room, event string, payload any) {
	data, err := encodeEnvelope(event, payload)
	if err != nil {
		h.log.Errorw("failed to encode broadcast", "room", room, "event", event, "error", err)
		return
	}

	h.deliverLocal(room, data)

	if h.relay != nil {
		frame, err := json.Marshal(&RelayFrame{Origin: h.id, Room: room, Data: data})
		if err != nil {
			h.log.Errorw("failed to encode relay frame", "room", room, "error", err)
			return
		}
		if err := h.relay.Publish(room, frame); err != nil {
			h.log.Warnw("relay publish failed", "room", room, "error", err)
		}
	}
}

// NotifyUser pushes a server-initiated event to a user's private channel.
func (h *Hub) NotifyUser(userID, event string, payload any) {
	h.Broadcast(model.UserRoom(userID), event, payload)
}

// DeliverRelayed delivers a frame received from another instance. Frames
// originating here were already delivered locally and are skipped.
func (h *Hub) DeliverRelayed(frame *RelayFrame) {
	if frame.Origin == h.id {
		return
	}
	h.deliverLocal(frame.Room, frame.Data)
}

func (h *Hub) deliverLocal(room string, data []byte) {
	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.Send(data)
	}
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{Type: event, Payload: raw})
}

func roomKind(room string) string {
	if kind, _, ok := strings.Cut(room, ":"); ok {
		return kind
	}
	return "unknown"
}
