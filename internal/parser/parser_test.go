package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
)

func TestParseFencedJSON(t *testing.T) {
	text := "```json\n{\"response\":\"Great job!\",\"actions\":[{\"type\":\"highlight\",\"target\":\"0\",\"data\":{}}]}\n```"

	resp := Parse(text)

	require.NotNil(t, resp)
	assert.Equal(t, "Great job!", resp.Response)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "highlight", resp.Actions[0].Type)
	assert.Equal(t, "0", resp.Actions[0].Target)
	assert.NotNil(t, resp.Actions[0].Data)
	assert.True(t, Validate(resp))
}

func TestParseFencedWithoutLanguageTag(t *testing.T) {
	text := "Here you go:\n```\n{\"response\":\"ok\"}\n```"

	resp := Parse(text)

	assert.Equal(t, "ok", resp.Response)
}

func TestParsePlainText(t *testing.T) {
	resp := Parse("Keep going!")

	assert.Equal(t, "Keep going!", resp.Response)
	assert.Nil(t, resp.Actions)
	assert.True(t, Validate(resp))
}

func TestParseEmbeddedObjectLiteral(t *testing.T) {
	text := `Sure, here is what I'd do: {"response":"Try step two again.","stateUpdates":{"attempts":3}} hope that helps`

	resp := Parse(text)

	assert.Equal(t, "Try step two again.", resp.Response)
	require.NotNil(t, resp.StateUpdates)
	assert.EqualValues(t, 3, resp.StateUpdates["attempts"])
}

func TestParseBracesInsideStrings(t *testing.T) {
	text := `{"response":"use {curly} braces like this: }"}`

	resp := Parse(text)

	assert.Equal(t, "use {curly} braces like this: }", resp.Response)
}

func TestParseFieldFallbacks(t *testing.T) {
	assert.Equal(t, "alt", Parse(`{"text":"alt"}`).Response)
	assert.Equal(t, "msg", Parse(`{"message":"msg"}`).Response)
	assert.Equal(t, FallbackResponse, Parse(`{"other":"x"}`).Response)
}

func TestParseActionCoercion(t *testing.T) {
	text := `{"response":"r","actions":[{"target":"el-1"},{"type":"navigate","data":{"to":"s2"}}]}`

	resp := Parse(text)

	require.Len(t, resp.Actions, 2)
	assert.Equal(t, "custom", resp.Actions[0].Type)
	assert.Equal(t, "el-1", resp.Actions[0].Target)
	assert.Equal(t, "navigate", resp.Actions[1].Type)
	assert.Equal(t, "s2", resp.Actions[1].Data["to"])
}

func TestParseUnknownFieldsDropped(t *testing.T) {
	resp := Parse(`{"response":"r","bogus":true,"extra":[1,2]}`)

	assert.Equal(t, "r", resp.Response)
	assert.Nil(t, resp.StateUpdates)
	assert.Nil(t, resp.Metadata)
}

func TestParseMalformedJSONFallsThrough(t *testing.T) {
	text := "```json\n{not valid json\n```"

	resp := Parse(text)

	// Degrades to plain text of the whole completion.
	assert.Contains(t, resp.Response, "not valid json")
}

func TestParseMetadata(t *testing.T) {
	resp := Parse(`{"response":"r","metadata":{"confidence":0.9,"suggestedNextStep":"review"}}`)

	require.NotNil(t, resp.Metadata)
	assert.InDelta(t, 0.9, resp.Metadata.Confidence, 1e-9)
	assert.Equal(t, "review", resp.Metadata.SuggestedNextStep)
}

func TestValidate(t *testing.T) {
	assert.False(t, Validate(nil))
	assert.False(t, Validate(&model.StructuredResponse{}))
	assert.True(t, Validate(&model.StructuredResponse{Response: "ok"}))
	assert.False(t, Validate(&model.StructuredResponse{
		Response: "ok",
		Actions:  []model.Action{{Type: ""}},
	}))
}
