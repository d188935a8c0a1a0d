// Package parser extracts structured responses from free-form model output.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
)

// FallbackResponse is used when a structured payload carries no usable
// response text under any known field name.
const FallbackResponse = "I wasn't able to put together a response. Could you try rephrasing?"

// Parse turns raw completion text into a structured response. It tries, in
// order: a fenced JSON block, the first brace-balanced object literal, and
// finally the full text as a plain response. It never fails.
func Parse(text string) *model.StructuredResponse {
	trimmed := strings.TrimSpace(text)

	if inner, ok := fencedBlock(trimmed); ok {
		if resp, ok := parseObject(inner); ok {
			return resp
		}
	}

	if literal, ok := objectLiteral(trimmed); ok {
		if resp, ok := parseObject(literal); ok {
			return resp
		}
	}

	return &model.StructuredResponse{Response: trimmed}
}

// Validate reports whether a structured response is usable: a non-empty
// response string, and every action carrying a string type.
func Validate(r *model.StructuredResponse) bool {
	if r == nil || r.Response == "" {
		return false
	}
	for _, a := range r.Actions {
		if a.Type == "" {
			return false
		}
	}
	return true
}

// fencedBlock returns the contents of the first ``` or ```json fence.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line, e.g. "json".
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{}") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// objectLiteral returns the first brace-balanced {...} substring, tracking
// JSON string boundaries so braces inside strings do not miscount.
func objectLiteral(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// parseObject unmarshals a candidate JSON object and normalizes it.
func parseObject(raw string) (*model.StructuredResponse, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, false
	}

	resp := &model.StructuredResponse{
		Response: firstString(fields, "response", "text", "message"),
	}
	if resp.Response == "" {
		resp.Response = FallbackResponse
	}

	if rawActions, ok := fields["actions"]; ok {
		var entries []map[string]any
		if err := json.Unmarshal(rawActions, &entries); err == nil {
			for _, entry := range entries {
				resp.Actions = append(resp.Actions, coerceAction(entry))
			}
		}
	}

	if rawUpdates, ok := fields["stateUpdates"]; ok {
		var updates map[string]any
		if err := json.Unmarshal(rawUpdates, &updates); err == nil {
			resp.StateUpdates = updates
		}
	}

	if rawMeta, ok := fields["metadata"]; ok {
		var meta model.ResponseMetadata
		if err := json.Unmarshal(rawMeta, &meta); err == nil {
			resp.Metadata = &meta
		}
	}

	return resp, true
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func coerceAction(entry map[string]any) model.Action {
	action := model.Action{
		Type: "custom",
		Data: map[string]any{},
	}
	if t, ok := entry["type"].(string); ok && t != "" {
		action.Type = t
	}
	if target, ok := entry["target"].(string); ok {
		action.Target = target
	}
	if data, ok := entry["data"].(map[string]any); ok {
		action.Data = data
	}
	return action
}
