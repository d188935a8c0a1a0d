package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
)

type mapStore struct {
	templates map[string]string
	err       error
}

func (s *mapStore) GetByKey(_ context.Context, _ string, key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.templates[key], nil
}

func TestComposeOrdersLayers(t *testing.T) {
	store := &mapStore{templates: map[string]string{
		KeyBaseInstructions: "BASE",
		KeySDKReference:     "SDK",
		KeyEventRules:       "EVENTS",
		KeyResponseFormat:   "FORMAT",
	}}
	c := NewComposer(store, logger.NewNop())

	out := c.Compose(context.Background(), Input{Custom: "CUSTOM"})

	assert.Equal(t, "BASE\n\nSDK\n\nEVENTS\n\nFORMAT\n\nCUSTOM", out)
}

func TestComposeOmitsMissingLayers(t *testing.T) {
	store := &mapStore{templates: map[string]string{
		KeyBaseInstructions: "BASE",
		KeyResponseFormat:   "FORMAT",
	}}
	c := NewComposer(store, logger.NewNop())

	out := c.Compose(context.Background(), Input{})

	// No empty sections, no extra separators.
	assert.Equal(t, "BASE\n\nFORMAT", out)
}

func TestComposeSurvivesStoreErrors(t *testing.T) {
	c := NewComposer(&mapStore{err: errors.New("backend down")}, logger.NewNop())

	out := c.Compose(context.Background(), Input{Custom: "CUSTOM"})

	assert.Equal(t, "CUSTOM", out)
}

func TestComposeInteractionContextLayer(t *testing.T) {
	store := &mapStore{templates: map[string]string{KeyBaseInstructions: "BASE"}}
	c := NewComposer(store, logger.NewNop())

	ts := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	ic := &model.InteractionContext{
		ID:               "L1:S1:I1",
		LessonID:         "L1",
		SubstageID:       "S1",
		InteractionID:    "I1",
		State:            map[string]any{"attempts": 2},
		ProcessedContent: json.RawMessage(`{"title":"Cells"}`),
	}
	events := []model.InteractionEvent{
		{Type: "answer-submitted", Timestamp: ts, Data: map[string]any{"correct": false}, RequiresLLMResponse: true},
	}

	out := c.Compose(context.Background(), Input{InteractionContext: ic, RecentEvents: events})

	assert.Contains(t, out, "Lesson: L1 / Substage: S1 / Interaction: I1")
	assert.Contains(t, out, "\"title\": \"Cells\"")
	assert.Contains(t, out, "\"attempts\": 2")
	assert.Contains(t, out, `Event 1: answer-submitted/2025-03-01T10:30:00Z/{"correct":false}/true`)
}

func TestComposeMalformedSnapshotUsesPlaceholder(t *testing.T) {
	c := NewComposer(&mapStore{templates: map[string]string{}}, logger.NewNop())

	ic := &model.InteractionContext{
		LessonID:         "L1",
		ProcessedContent: json.RawMessage(`{broken`),
	}

	out := c.Compose(context.Background(), Input{InteractionContext: ic})

	assert.Contains(t, out, jsonPlaceholder)
}

func TestStaticStoreFallsBackToDefaults(t *testing.T) {
	store := NewStaticStore(map[string]string{KeyBaseInstructions: "override"})

	text, err := store.GetByKey(context.Background(), "tutor-1", KeyBaseInstructions)
	require.NoError(t, err)
	assert.Equal(t, "override", text)

	text, err = store.GetByKey(context.Background(), "tutor-1", KeySummarizeHistory)
	require.NoError(t, err)
	assert.Contains(t, text, "{{conversation}}")
}
