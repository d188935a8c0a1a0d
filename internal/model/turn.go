// Package model defines the wire and domain types for tutoring sessions.
package model

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// Turn is one element of a conversation history. Histories are supplied by
// the caller per request and are never stored server-side beyond the
// request's lifetime.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
