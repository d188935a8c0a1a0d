package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brightpath-edu/tutoring-platform/internal/history"
	"github.com/brightpath-edu/tutoring-platform/internal/llm"
	"github.com/brightpath-edu/tutoring-platform/internal/middleware"
	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/internal/parser"
	"github.com/brightpath-edu/tutoring-platform/internal/prompt"
	"github.com/brightpath-edu/tutoring-platform/internal/usage"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
	"github.com/brightpath-edu/tutoring-platform/pkg/metrics"
)

// ScreenshotMarker is the exact token the tutor emits when it needs to see
// the learner's screen before answering.
const ScreenshotMarker = "[SCREENSHOT_REQUEST]"

// FallbackSuffix marks a reply produced by a client-driven timeout-fallback
// resend of the original message.
const FallbackSuffix = "\n\n_(delayed response)_"

// Broadcaster delivers events to session channels. Implemented by the
// transport hub.
type Broadcaster interface {
	Broadcast(room, event string, payload any)
	NotifyUser(userID, event string, payload any)
}

// ChatConfig holds the primary-call parameters.
type ChatConfig struct {
	AssistantID string
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatService runs one send-message exchange end to end: echo, typing
// indicator, prompt assembly, budget enforcement, the gateway call, response
// parsing, screenshot negotiation, and terminal broadcasts.
type ChatService struct {
	gateway     llm.Client
	composer    *prompt.Composer
	historyMgr  *history.Manager
	usage       usage.Recorder
	broadcaster Broadcaster
	log         *logger.Logger
	cfg         ChatConfig
	exchanges   *exchangeTracker
}

// NewChatService creates the chat orchestrator.
func NewChatService(
	gateway llm.Client,
	composer *prompt.Composer,
	historyMgr *history.Manager,
	recorder usage.Recorder,
	broadcaster Broadcaster,
	cfg ChatConfig,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		gateway:     gateway,
		composer:    composer,
		historyMgr:  historyMgr,
		usage:       recorder,
		broadcaster: broadcaster,
		log:         log,
		cfg:         cfg,
		exchanges:   newExchangeTracker(),
	}
}

// HandleMessage processes one send-message exchange. Validation failures
// return a failed ack with no side effects; every path that turns the typing
// indicator on clears it before its terminal broadcast.
func (s *ChatService) HandleMessage(ctx context.Context, req *model.SendMessageRequest) *model.SendMessageAck {
	if err := validateSendMessage(req); err != nil {
		return &model.SendMessageAck{Success: false, Error: err.Error()}
	}

	room := model.LessonRoom(req.TenantID, req.LessonID)
	exchangeKey := room + ":" + req.UserID
	log := s.log.WithSession(req.TenantID, req.UserID)

	// Screenshot responses may arrive with an empty message; recover the
	// original question from the pending exchange, else from the supplied
	// history.
	message := req.Message
	if req.IsScreenshotRequest && message == "" {
		message = s.exchanges.takePendingQuestion(exchangeKey)
		if message == "" {
			message = lastUserTurn(req.ConversationHistory)
		}
	}

	// Echo rule: the user's message is shown to the channel except when it
	// is a screenshot response (silent) or a fallback resend (already shown).
	if !req.IsScreenshotRequest && !req.IsTimeoutFallback {
		s.broadcaster.Broadcast(room, model.EventMessage, &model.ChatMessageEvent{
			Role:    model.RoleUser,
			Content: req.Message,
			UserID:  req.UserID,
		})
		metrics.MessagesTotal.WithLabelValues(req.TenantID, string(model.RoleUser)).Inc()
	}

	s.broadcaster.Broadcast(room, model.EventAITyping, &model.TypingEvent{Typing: true})

	seq := s.exchanges.next(exchangeKey)

	attr := history.Attribution{
		AssistantID: s.cfg.AssistantID,
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		LessonID:    req.LessonID,
	}

	system := s.composer.Compose(ctx, prompt.Input{
		AssistantID: s.cfg.AssistantID,
		Custom:      lessonLayer(req),
	})
	turns := s.historyMgr.EnforceHistory(ctx, attr, req.ConversationHistory)
	system = s.historyMgr.EnforceRequestBudget(ctx, attr, system, turns, message)

	creq := &llm.CompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Messages:    buildMessages(system, turns, message),
	}
	if req.Screenshot != "" {
		creq.Images = []string{req.Screenshot}
	}

	start := time.Now()
	resp, err := s.gateway.Complete(ctx, creq)

	// A newer call for this exchange (screenshot response or fallback
	// resend) wins; this completion is stale and must not broadcast.
	if s.exchanges.superseded(exchangeKey, seq) {
		log.Infow("discarding superseded completion", "exchange", exchangeKey, "seq", seq)
		return &model.SendMessageAck{Success: true, Received: true}
	}

	if err != nil {
		kind := ClassifyGatewayError(err)
		log.Errorw("gateway call failed", "kind", kind, "error", err)
		metrics.RecordLLMCall(usage.PurposeChat, "error", time.Since(start).Seconds(), 0, 0)

		s.broadcaster.Broadcast(room, model.EventAITyping, &model.TypingEvent{Typing: false})
		s.broadcaster.Broadcast(room, model.EventMessage, &model.ChatMessageEvent{
			Role:    model.RoleError,
			Content: GatewayErrorMessage(kind),
		})
		return &model.SendMessageAck{Success: false, Error: string(kind)}
	}

	metrics.RecordLLMCall(usage.PurposeChat, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	s.usage.Record(usage.Entry{
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		LessonID:  req.LessonID,
		Purpose:   usage.PurposeChat,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		LatencyMs: resp.LatencyMs,
	})

	parsed := parser.Parse(resp.Content)
	if !parser.Validate(parsed) {
		parsed = &model.StructuredResponse{Response: resp.Content}
	}

	// Screenshot negotiation: request the capture silently, without any
	// assistant message.
	if strings.Contains(resp.Content, ScreenshotMarker) {
		s.exchanges.setPendingQuestion(exchangeKey, message)
		metrics.ScreenshotRequestsTotal.Inc()

		s.broadcaster.Broadcast(room, model.EventAITyping, &model.TypingEvent{Typing: false})
		s.broadcaster.Broadcast(room, model.EventScreenshotRequest, struct{}{})
		return &model.SendMessageAck{Success: true, ScreenshotRequested: true}
	}

	content := parsed.Response
	if req.IsTimeoutFallback {
		content += FallbackSuffix
	}

	s.broadcaster.Broadcast(room, model.EventAITyping, &model.TypingEvent{Typing: false})
	s.broadcaster.Broadcast(room, model.EventMessage, &model.ChatMessageEvent{
		Role:       model.RoleAssistant,
		Content:    content,
		Actions:    parsed.Actions,
		IsFallback: req.IsTimeoutFallback,
	})
	s.broadcaster.Broadcast(room, model.EventTokenUsage, &model.TokenUsageEvent{
		TokensUsed: resp.TokensUsed(),
		Purpose:    usage.PurposeChat,
	})
	metrics.MessagesTotal.WithLabelValues(req.TenantID, string(model.RoleAssistant)).Inc()

	return &model.SendMessageAck{Success: true, Received: true}
}

func validateSendMessage(req *model.SendMessageRequest) error {
	switch {
	case req.LessonID == "":
		return fmt.Errorf("%w: lessonId is required", ErrValidation)
	case req.UserID == "":
		return fmt.Errorf("%w: userId is required", ErrValidation)
	case req.TenantID == "":
		return fmt.Errorf("%w: tenantId is required", ErrValidation)
	case req.Message == "" && !req.IsScreenshotRequest:
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if req.Message != "" {
		if err := middleware.ValidateMessageContent(req.Message); err != nil {
			return fmt.Errorf("%w: %s", ErrValidation, err)
		}
	}
	return nil
}

func buildMessages(system string, turns []model.Turn, pending string) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(turns)+2)
	if system != "" {
		messages = append(messages, llm.ChatMessage{Role: string(model.RoleSystem), Content: system})
	}
	for _, turn := range turns {
		messages = append(messages, llm.ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleUser), Content: pending})
	return messages
}

// lessonLayer formats the caller-supplied lesson snapshot and stage info as
// the builder-supplied custom prompt layer.
func lessonLayer(req *model.SendMessageRequest) string {
	var b strings.Builder
	if len(req.LessonSnapshot) > 0 {
		b.WriteString("## Lesson Content\n")
		b.WriteString(string(req.LessonSnapshot))
	}
	if len(req.CurrentStageInfo) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## Current Stage\n")
		for key, value := range req.CurrentStageInfo {
			fmt.Fprintf(&b, "%s: %v\n", key, value)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func lastUserTurn(turns []model.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == model.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}
