package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/brightpath-edu/tutoring-platform/internal/middleware"
	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/internal/service"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
	"github.com/brightpath-edu/tutoring-platform/pkg/metrics"
)

// ackEnvelope is the reply type for acknowledged client events.
const ackEnvelope = "ack"

// Handler upgrades session connections and routes protocol events into the
// orchestrators.
type Handler struct {
	hub          *Hub
	chat         *service.ChatService
	interactions *service.InteractionService
	log          *logger.Logger
}

// NewHandler creates the WebSocket session handler.
func NewHandler(hub *Hub, chat *service.ChatService, interactions *service.InteractionService, log *logger.Logger) *Handler {
	return &Handler{
		hub:          hub,
		chat:         chat,
		interactions: interactions,
		log:          log,
	}
}

// ServeHTTP implements http.Handler for the session endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Errorw("failed to accept session connection", "user_id", userID, "error", err)
		return
	}

	metrics.IncrementSessionConnections()
	defer metrics.DecrementSessionConnections()

	c := newConn(ws, userID, h.log)
	defer h.hub.Drop(c)
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writePump(ctx)

	h.log.Infow("session connected", "user_id", userID)

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				h.log.Infow("session disconnected", "user_id", userID)
			} else {
				h.log.Warnw("session read failed", "user_id", userID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.nack(c, "", "malformed envelope")
			continue
		}

		// Each event runs in its own handler so a long gateway call does
		// not block the read loop. The connection context is detached:
		// an in-progress gateway call is never cancelled mid-flight.
		go h.dispatch(context.WithoutCancel(ctx), c, &env)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *Conn, env *Envelope) {
	switch env.Type {
	case model.EventJoinChannel:
		h.handleJoinChannel(c, env)
	case model.EventJoinUserChannel:
		h.handleJoinUserChannel(c, env)
	case model.EventLeaveChannel:
		h.handleLeaveChannel(c, env)
	case model.EventSendMessage:
		h.handleSendMessage(ctx, c, env)
	case model.EventInteractionEvent:
		h.handleInteractionEvent(ctx, c, env)
	default:
		h.nack(c, env.AckID, "unknown event type: "+env.Type)
	}
}

func (h *Handler) handleJoinChannel(c *Conn, env *Envelope) {
	var req model.JoinChannelRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.nack(c, env.AckID, "malformed join-channel payload")
		return
	}
	if err := validateRoomIdentity(req.LessonID, req.UserID, req.TenantID); err != nil {
		h.nack(c, env.AckID, err.Error())
		return
	}

	room := model.LessonRoom(req.TenantID, req.LessonID)
	h.hub.Join(room, c)
	h.ack(c, env.AckID, &model.JoinChannelAck{RoomName: room})
	h.hub.Broadcast(room, model.EventUserJoined, &model.PresenceEvent{
		UserID:   req.UserID,
		RoomName: room,
	})
}

func (h *Handler) handleJoinUserChannel(c *Conn, env *Envelope) {
	var req model.JoinUserChannelRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.nack(c, env.AckID, "malformed join-user-channel payload")
		return
	}
	if err := middleware.ValidateUserID(req.UserID); err != nil {
		h.nack(c, env.AckID, err.Error())
		return
	}

	room := model.UserRoom(req.UserID)
	h.hub.Join(room, c)
	h.ack(c, env.AckID, &model.JoinChannelAck{RoomName: room})
}

func (h *Handler) handleLeaveChannel(c *Conn, env *Envelope) {
	var req model.LeaveChannelRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.nack(c, env.AckID, "malformed leave-channel payload")
		return
	}
	if err := validateRoomIdentity(req.LessonID, req.UserID, req.TenantID); err != nil {
		h.nack(c, env.AckID, err.Error())
		return
	}

	room := model.LessonRoom(req.TenantID, req.LessonID)
	h.hub.Leave(room, c)
	h.hub.Broadcast(room, model.EventUserLeft, &model.PresenceEvent{
		UserID:   req.UserID,
		RoomName: room,
	})
	h.ack(c, env.AckID, map[string]bool{"success": true})
}

func (h *Handler) handleSendMessage(ctx context.Context, c *Conn, env *Envelope) {
	var req model.SendMessageRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.nack(c, env.AckID, "malformed send-message payload")
		return
	}

	ack := h.chat.HandleMessage(ctx, &req)
	h.ack(c, env.AckID, ack)
}

func (h *Handler) handleInteractionEvent(ctx context.Context, c *Conn, env *Envelope) {
	var req model.InteractionEventRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		h.nack(c, env.AckID, "malformed interaction-event payload")
		return
	}

	ack := h.interactions.HandleEvent(ctx, &req)
	h.ack(c, env.AckID, ack)
}

func validateRoomIdentity(lessonID, userID, tenantID string) error {
	if err := middleware.ValidateLessonID(lessonID); err != nil {
		return err
	}
	if err := middleware.ValidateUserID(userID); err != nil {
		return err
	}
	return middleware.ValidateTenantID(tenantID)
}

func (h *Handler) ack(c *Conn, ackID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorw("failed to encode ack", "error", err)
		return
	}
	data, err := json.Marshal(&Envelope{Type: ackEnvelope, AckID: ackID, Payload: raw})
	if err != nil {
		h.log.Errorw("failed to encode ack envelope", "error", err)
		return
	}
	c.Send(data)
}

func (h *Handler) nack(c *Conn, ackID, message string) {
	h.ack(c, ackID, map[string]any{"success": false, "error": message})
}
