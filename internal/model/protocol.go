package model

import (
	"encoding/json"
	"fmt"
)

// LessonRoom names the broadcast channel shared by a lesson's participants.
func LessonRoom(tenantID, lessonID string) string {
	return fmt.Sprintf("lesson:%s:%s", tenantID, lessonID)
}

// UserRoom names a user's private channel.
func UserRoom(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// Client-originated protocol event types.
const (
	EventJoinChannel      = "join-channel"
	EventJoinUserChannel  = "join-user-channel"
	EventLeaveChannel     = "leave-channel"
	EventSendMessage      = "send-message"
	EventInteractionEvent = "interaction-event"
)

// Server-originated broadcast event types.
const (
	EventMessage               = "message"
	EventAITyping              = "ai-typing"
	EventTokenUsage            = "token-usage"
	EventScreenshotRequest     = "screenshot-request"
	EventUserJoined            = "user-joined"
	EventUserLeft              = "user-left"
	EventInteractionAIResponse = "interaction-ai-response"
)

// JoinChannelRequest joins a lesson channel.
type JoinChannelRequest struct {
	LessonID string `json:"lessonId"`
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
}

// JoinUserChannelRequest joins a user's private channel.
type JoinUserChannelRequest struct {
	UserID string `json:"userId"`
}

// LeaveChannelRequest leaves a lesson channel.
type LeaveChannelRequest struct {
	LessonID string `json:"lessonId"`
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
}

// JoinChannelAck acknowledges a join.
type JoinChannelAck struct {
	RoomName string `json:"roomName"`
}

// SendMessageRequest is the main chat exchange request.
type SendMessageRequest struct {
	LessonID            string          `json:"lessonId"`
	UserID              string          `json:"userId"`
	TenantID            string          `json:"tenantId"`
	Message             string          `json:"message"`
	ConversationHistory []Turn          `json:"conversationHistory,omitempty"`
	LessonSnapshot      json.RawMessage `json:"lessonSnapshot,omitempty"`
	Screenshot          string          `json:"screenshot,omitempty"`
	IsScreenshotRequest bool            `json:"isScreenshotRequest,omitempty"`
	CurrentStageInfo    map[string]any  `json:"currentStageInfo,omitempty"`
	IsTimeoutFallback   bool            `json:"isTimeoutFallback,omitempty"`
}

// SendMessageAck acknowledges a send-message exchange.
type SendMessageAck struct {
	Success             bool   `json:"success"`
	Received            bool   `json:"received,omitempty"`
	ScreenshotRequested bool   `json:"screenshotRequested,omitempty"`
	Error               string `json:"error,omitempty"`
}

// InteractionEventRequest routes an event into the interaction flow.
type InteractionEventRequest struct {
	LessonID           string           `json:"lessonId"`
	SubstageID         string           `json:"substageId"`
	InteractionID      string           `json:"interactionId"`
	Event              InteractionEvent `json:"event"`
	CurrentState       map[string]any   `json:"currentState,omitempty"`
	ProcessedContentID string           `json:"processedContentId,omitempty"`
	UserID             string           `json:"userId"`
	TenantID           string           `json:"tenantId"`
}

// InteractionEventAck acknowledges an interaction event.
type InteractionEventAck struct {
	Success     bool                `json:"success"`
	LLMResponse *StructuredResponse `json:"llmResponse,omitempty"`
	TokensUsed  int                 `json:"tokensUsed,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// ChatMessageEvent is the payload of a "message" broadcast.
type ChatMessageEvent struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	UserID     string         `json:"userId,omitempty"`
	Actions    []Action       `json:"actions,omitempty"`
	IsFallback bool           `json:"isFallback,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TypingEvent is the payload of an "ai-typing" broadcast.
type TypingEvent struct {
	Typing bool `json:"typing"`
}

// TokenUsageEvent is the payload of a "token-usage" broadcast.
type TokenUsageEvent struct {
	TokensUsed int    `json:"tokensUsed"`
	Purpose    string `json:"purpose,omitempty"`
}

// PresenceEvent is the payload of "user-joined" and "user-left" broadcasts.
type PresenceEvent struct {
	UserID   string `json:"userId"`
	RoomName string `json:"roomName"`
}

// InteractionAIResponseEvent is the payload of an "interaction-ai-response"
// broadcast.
type InteractionAIResponseEvent struct {
	InteractionID string              `json:"interactionId"`
	Response      *StructuredResponse `json:"response"`
	TokensUsed    int                 `json:"tokensUsed,omitempty"`
}
