package service

import (
	"context"
	"sync"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
)

// Outcome is what an event handler contributes to the interaction flow.
type Outcome struct {
	// StateUpdates are merged into the context after the handler runs.
	StateUpdates map[string]any

	// ForceLLMResponse requests a tutor reply even when the event itself
	// does not carry requiresLLMResponse.
	ForceLLMResponse bool
}

// EventHandlerFunc handles one interaction event type.
type EventHandlerFunc func(ctx context.Context, ic *model.InteractionContext, event model.InteractionEvent) Outcome

// Registry maps the open event-type vocabulary onto typed handlers. Unknown
// types fall through to a pass-through default, so the vocabulary stays
// extensible without losing typed handling for known cases.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]EventHandlerFunc
	fallback EventHandlerFunc
}

// NewRegistry creates a registry with the built-in handlers installed.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]EventHandlerFunc),
		fallback: func(context.Context, *model.InteractionContext, model.InteractionEvent) Outcome {
			return Outcome{}
		},
	}
	r.Register("answer-submitted", handleAnswerSubmitted)
	r.Register("hint-requested", handleHintRequested)
	r.Register("substage-completed", handleSubstageCompleted)
	return r
}

// Register installs a handler for an event type, replacing any existing one.
func (r *Registry) Register(eventType string, handler EventHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = handler
}

// Dispatch routes an event to its handler, or to the default pass-through.
func (r *Registry) Dispatch(ctx context.Context, ic *model.InteractionContext, event model.InteractionEvent) Outcome {
	r.mu.RLock()
	handler, ok := r.handlers[event.Type]
	r.mu.RUnlock()
	if !ok {
		handler = r.fallback
	}
	return handler(ctx, ic, event)
}

func handleAnswerSubmitted(_ context.Context, ic *model.InteractionContext, event model.InteractionEvent) Outcome {
	attempts := 1
	// State merged from client JSON carries numbers as float64.
	switch prev := ic.State["attempts"].(type) {
	case int:
		attempts = prev + 1
	case float64:
		attempts = int(prev) + 1
	}
	out := Outcome{StateUpdates: map[string]any{"attempts": attempts}}
	if correct, ok := event.Data["correct"].(bool); ok && !correct {
		// Wrong answers always get tutor feedback.
		out.ForceLLMResponse = true
	}
	return out
}

func handleHintRequested(_ context.Context, _ *model.InteractionContext, _ model.InteractionEvent) Outcome {
	return Outcome{ForceLLMResponse: true}
}

func handleSubstageCompleted(_ context.Context, _ *model.InteractionContext, _ model.InteractionEvent) Outcome {
	return Outcome{StateUpdates: map[string]any{"completed": true}}
}
