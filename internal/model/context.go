package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxContextEvents bounds the event log of one interaction context.
// Older events are evicted FIFO once the cap is reached.
const MaxContextEvents = 50

// ContextID builds the composite key for an interaction context.
func ContextID(lessonID, substageID, interactionID string) string {
	return fmt.Sprintf("%s:%s:%s", lessonID, substageID, interactionID)
}

// InteractionContext holds mutable state and a bounded event log for one
// learner's instance of one interaction within one lesson substage.
type InteractionContext struct {
	ID               string             `json:"id"`
	LessonID         string             `json:"lessonId"`
	SubstageID       string             `json:"substageId"`
	InteractionID    string             `json:"interactionId"`
	State            map[string]any     `json:"state"`
	Events           []InteractionEvent `json:"events"`
	ProcessedContent json.RawMessage    `json:"processedContent,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// InteractionEvent is a single event in a context's timeline. Type is an
// open vocabulary, not a closed enum; unknown types still flow through the
// handler registry's default handler.
type InteractionEvent struct {
	Type                string         `json:"type"`
	Timestamp           time.Time      `json:"timestamp"`
	Data                map[string]any `json:"data,omitempty"`
	RequiresLLMResponse bool           `json:"requiresLLMResponse"`
	Metadata            *EventMetadata `json:"metadata,omitempty"`
}

// EventMetadata carries optional routing hints for an event.
type EventMetadata struct {
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
}
