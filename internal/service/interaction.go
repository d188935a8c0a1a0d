package service

import (
	"context"
	"fmt"
	"time"

	"github.com/brightpath-edu/tutoring-platform/internal/contextstore"
	"github.com/brightpath-edu/tutoring-platform/internal/llm"
	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/internal/parser"
	"github.com/brightpath-edu/tutoring-platform/internal/prompt"
	"github.com/brightpath-edu/tutoring-platform/internal/usage"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
	"github.com/brightpath-edu/tutoring-platform/pkg/metrics"
)

// InteractionService handles the secondary flow: per-interaction events that
// update context state and may trigger a tutor reply, bypassing the main
// chat path.
type InteractionService struct {
	store       contextstore.Store
	gateway     llm.Client
	composer    *prompt.Composer
	usage       usage.Recorder
	broadcaster Broadcaster
	registry    *Registry
	log         *logger.Logger
	cfg         ChatConfig
}

// NewInteractionService creates the interaction event orchestrator.
func NewInteractionService(
	store contextstore.Store,
	gateway llm.Client,
	composer *prompt.Composer,
	recorder usage.Recorder,
	broadcaster Broadcaster,
	registry *Registry,
	cfg ChatConfig,
	log *logger.Logger,
) *InteractionService {
	return &InteractionService{
		store:       store,
		gateway:     gateway,
		composer:    composer,
		usage:       recorder,
		broadcaster: broadcaster,
		registry:    registry,
		log:         log,
		cfg:         cfg,
	}
}

// HandleEvent routes one interaction event: context bookkeeping, registry
// dispatch, and an optional gateway call broadcast as
// interaction-ai-response.
func (s *InteractionService) HandleEvent(ctx context.Context, req *model.InteractionEventRequest) *model.InteractionEventAck {
	if err := validateInteractionEvent(req); err != nil {
		return &model.InteractionEventAck{Success: false, Error: err.Error()}
	}

	room := model.LessonRoom(req.TenantID, req.LessonID)
	log := s.log.WithSession(req.TenantID, req.UserID)

	ic, err := s.store.GetOrCreate(ctx, req.LessonID, req.SubstageID, req.InteractionID, req.ProcessedContentID)
	if err != nil {
		log.Errorw("failed to get interaction context", "error", err)
		return &model.InteractionEventAck{Success: false, Error: "interaction context unavailable"}
	}

	// A referenced content snapshot that could not be found is surfaced to
	// the channel but does not abort event processing.
	if req.ProcessedContentID != "" && len(ic.ProcessedContent) == 0 {
		s.broadcaster.Broadcast(room, model.EventMessage, &model.ChatMessageEvent{
			Role:    model.RoleError,
			Content: "Referenced lesson content was not found.",
		})
	}

	if len(req.CurrentState) > 0 {
		if err := s.store.MergeState(ic.ID, req.CurrentState); err != nil {
			log.Warnw("state merge skipped", "context_id", ic.ID, "error", err)
		}
	}
	if err := s.store.AppendEvent(ic.ID, req.Event); err != nil {
		log.Warnw("event append skipped", "context_id", ic.ID, "error", err)
	}

	outcome := s.registry.Dispatch(ctx, ic, req.Event)
	if len(outcome.StateUpdates) > 0 {
		if err := s.store.MergeState(ic.ID, outcome.StateUpdates); err != nil {
			log.Warnw("handler state merge skipped", "context_id", ic.ID, "error", err)
		}
	}

	if !req.Event.RequiresLLMResponse && !outcome.ForceLLMResponse {
		return &model.InteractionEventAck{Success: true}
	}

	system := s.composer.Compose(ctx, prompt.Input{
		AssistantID:        s.cfg.AssistantID,
		InteractionContext: ic,
		RecentEvents:       s.store.RecentEvents(ic.ID, 0),
	})

	start := time.Now()
	resp, err := s.gateway.Complete(ctx, &llm.CompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Messages: []llm.ChatMessage{
			{Role: string(model.RoleSystem), Content: system},
			{Role: string(model.RoleUser), Content: describeEvent(req.Event)},
		},
	})
	if err != nil {
		kind := ClassifyGatewayError(err)
		log.Errorw("interaction gateway call failed", "kind", kind, "error", err)
		metrics.RecordLLMCall(usage.PurposeInteraction, "error", time.Since(start).Seconds(), 0, 0)

		s.broadcaster.Broadcast(room, model.EventMessage, &model.ChatMessageEvent{
			Role:    model.RoleError,
			Content: GatewayErrorMessage(kind),
		})
		return &model.InteractionEventAck{Success: false, Error: string(kind)}
	}

	metrics.RecordLLMCall(usage.PurposeInteraction, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	s.usage.Record(usage.Entry{
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		LessonID:  req.LessonID,
		Purpose:   usage.PurposeInteraction,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		LatencyMs: resp.LatencyMs,
	})

	parsed := parser.Parse(resp.Content)
	if !parser.Validate(parsed) {
		parsed = &model.StructuredResponse{Response: resp.Content}
	}

	if len(parsed.StateUpdates) > 0 {
		if err := s.store.MergeState(ic.ID, parsed.StateUpdates); err != nil {
			log.Warnw("response state merge skipped", "context_id", ic.ID, "error", err)
		}
	}

	s.broadcaster.Broadcast(room, model.EventInteractionAIResponse, &model.InteractionAIResponseEvent{
		InteractionID: req.InteractionID,
		Response:      parsed,
		TokensUsed:    resp.TokensUsed(),
	})

	return &model.InteractionEventAck{
		Success:     true,
		LLMResponse: parsed,
		TokensUsed:  resp.TokensUsed(),
	}
}

func validateInteractionEvent(req *model.InteractionEventRequest) error {
	switch {
	case req.LessonID == "":
		return fmt.Errorf("%w: lessonId is required", ErrValidation)
	case req.SubstageID == "":
		return fmt.Errorf("%w: substageId is required", ErrValidation)
	case req.InteractionID == "":
		return fmt.Errorf("%w: interactionId is required", ErrValidation)
	case req.UserID == "":
		return fmt.Errorf("%w: userId is required", ErrValidation)
	case req.TenantID == "":
		return fmt.Errorf("%w: tenantId is required", ErrValidation)
	case req.Event.Type == "":
		return fmt.Errorf("%w: event.type is required", ErrValidation)
	}
	return nil
}

func describeEvent(event model.InteractionEvent) string {
	msg := fmt.Sprintf("The learner triggered the %q event.", event.Type)
	if len(event.Data) > 0 {
		msg += fmt.Sprintf(" Event data: %v.", event.Data)
	}
	msg += " Respond appropriately for this moment in the lesson."
	return msg
}
