// Package prompt assembles layered system prompts for the tutor.
package prompt

import "context"

// Template layer keys, in composition order.
const (
	KeyBaseInstructions = "base_instructions"
	KeySDKReference     = "sdk_reference"
	KeyEventRules       = "event_rules"
	KeyResponseFormat   = "response_format"

	// Summarization templates used by the history manager.
	KeySummarizeHistory = "summarize_history"
	KeySummarizePrompt  = "summarize_prompt"
)

// TemplateStore retrieves prompt template fragments by assistant and key.
// A missing template is reported as an empty string, not an error.
type TemplateStore interface {
	GetByKey(ctx context.Context, assistantID, key string) (string, error)
}

// defaults are the built-in fallback templates. Production deployments
// override these per assistant through an external TemplateStore.
var defaults = map[string]string{
	KeyBaseInstructions: `You are a patient, encouraging tutor guiding a learner through an interactive lesson.
Keep answers short and concrete, ask guiding questions before giving away solutions, and
stay on the lesson topic. If you need to see the learner's screen to answer accurately,
reply with exactly [SCREENSHOT_REQUEST] and nothing else.`,

	KeySDKReference: `You can drive the lesson client with actions. Available action types:
highlight (target: element id), navigate (data.to: substage id), reveal-hint (target: hint id),
celebrate, custom.`,

	KeyEventRules: `You receive interaction events describing what the learner did. React only to the
latest event unless earlier events change its meaning. Events marked requiresLLMResponse
expect a reply; others are context only.`,

	KeyResponseFormat: `Respond with a JSON object inside a fenced code block:
{"response": "<text shown to the learner>", "actions": [{"type": "...", "target": "...", "data": {}}],
"stateUpdates": {}, "metadata": {"confidence": 0.0, "suggestedNextStep": ""}}
Plain text is acceptable when no actions or state updates are needed.`,

	KeySummarizeHistory: `Summarize the tutoring conversation below in at most 200 words. Preserve the learner's
goal, what was explained, what the learner struggled with, and any unresolved questions.

{{conversation}}`,

	KeySummarizePrompt: `Compress the system prompt below. Keep every behavioral rule and the response format;
drop examples and repetition.

{{prompt}}`,
}

// StaticStore serves templates from an in-memory map, falling back to the
// built-in defaults for missing keys.
type StaticStore struct {
	overrides map[string]string
}

// NewStaticStore creates a static template store with optional overrides
// keyed by template key.
func NewStaticStore(overrides map[string]string) *StaticStore {
	return &StaticStore{overrides: overrides}
}

// GetByKey implements TemplateStore.
func (s *StaticStore) GetByKey(_ context.Context, _ string, key string) (string, error) {
	if s.overrides != nil {
		if text, ok := s.overrides[key]; ok {
			return text, nil
		}
	}
	return defaults[key], nil
}
