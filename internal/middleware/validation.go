package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateMessageContent validates chat message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateLessonID validates a lesson ID.
func ValidateLessonID(id string) error {
	return validateIdentifier(id, "lesson ID")
}

// ValidateUserID validates a user ID.
func ValidateUserID(id string) error {
	return validateIdentifier(id, "user ID")
}

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	return validateIdentifier(id, "tenant ID")
}

func validateIdentifier(id, name string) error {
	if len(id) == 0 {
		return errors.New(name + " cannot be empty")
	}
	if len(id) > 64 {
		return errors.New(name + " exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New(name + " must be valid UTF-8")
	}
	return nil
}
