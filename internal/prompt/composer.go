package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
)

// jsonPlaceholder is rendered when pretty-printing a layer's JSON fails.
const jsonPlaceholder = "[content unavailable]"

// Input carries the live context for one prompt composition.
type Input struct {
	AssistantID string

	// InteractionContext, when set, contributes the formatted context layer.
	InteractionContext *model.InteractionContext
	RecentEvents       []model.InteractionEvent

	// Custom is an optional builder-supplied final layer.
	Custom string
}

// Composer assembles the system prompt from ordered template layers. Layers
// whose template is missing are omitted entirely.
type Composer struct {
	templates TemplateStore
	log       *logger.Logger
}

// NewComposer creates a prompt composer.
func NewComposer(templates TemplateStore, log *logger.Logger) *Composer {
	return &Composer{templates: templates, log: log}
}

// Compose builds the final system prompt.
func (c *Composer) Compose(ctx context.Context, in Input) string {
	layers := make([]string, 0, 6)

	for _, key := range []string{KeyBaseInstructions, KeySDKReference, KeyEventRules, KeyResponseFormat} {
		text, err := c.templates.GetByKey(ctx, in.AssistantID, key)
		if err != nil {
			c.log.Warnw("template layer unavailable", "key", key, "error", err)
			continue
		}
		if text != "" {
			layers = append(layers, text)
		}
	}

	if in.InteractionContext != nil {
		layers = append(layers, c.formatInteractionContext(in.InteractionContext, in.RecentEvents))
	}

	if in.Custom != "" {
		layers = append(layers, in.Custom)
	}

	return strings.Join(layers, "\n\n")
}

// Template fetches a non-layer template (e.g. summarization) for the
// assistant, falling back to empty on error.
func (c *Composer) Template(ctx context.Context, assistantID, key string) string {
	text, err := c.templates.GetByKey(ctx, assistantID, key)
	if err != nil {
		c.log.Warnw("template unavailable", "key", key, "error", err)
		return ""
	}
	return text
}

func (c *Composer) formatInteractionContext(ic *model.InteractionContext, events []model.InteractionEvent) string {
	var b strings.Builder

	b.WriteString("## Current Interaction\n")
	fmt.Fprintf(&b, "Lesson: %s / Substage: %s / Interaction: %s\n", ic.LessonID, ic.SubstageID, ic.InteractionID)

	if len(ic.ProcessedContent) > 0 {
		b.WriteString("\nProcessed Content:\n")
		b.WriteString(prettyJSON(ic.ProcessedContent))
		b.WriteString("\n")
	}

	if len(ic.State) > 0 {
		b.WriteString("\nCurrent State:\n")
		b.WriteString(prettyJSON(ic.State))
		b.WriteString("\n")
	}

	if len(events) > 0 {
		b.WriteString("\nRecent Events:\n")
		for i, ev := range events {
			fmt.Fprintf(&b, "Event %d: %s/%s/%s/%t\n",
				i+1,
				ev.Type,
				ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				compactJSON(ev.Data),
				ev.RequiresLLMResponse,
			)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func prettyJSON(v any) string {
	if raw, ok := v.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return jsonPlaceholder
		}
		return buf.String()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return jsonPlaceholder
	}
	return string(data)
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return jsonPlaceholder
	}
	return string(data)
}
