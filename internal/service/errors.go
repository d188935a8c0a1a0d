// Package service implements the chat orchestrator and interaction flow.
package service

import (
	"errors"
	"strings"
)

// ErrValidation marks a request rejected before any side effects.
var ErrValidation = errors.New("validation failed")

// GatewayErrorKind classifies a gateway failure for the in-channel error
// message. No automatic retry happens for any kind.
type GatewayErrorKind string

const (
	GatewayTimeout GatewayErrorKind = "timeout"
	GatewayNetwork GatewayErrorKind = "network"
	GatewayAuth    GatewayErrorKind = "auth"
	GatewayGeneric GatewayErrorKind = "generic"
)

// ClassifyGatewayError buckets a gateway failure by message content.
func ClassifyGatewayError(err error) GatewayErrorKind {
	if err == nil {
		return GatewayGeneric
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded"):
		return GatewayTimeout
	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "dial") ||
		strings.Contains(msg, "refused") ||
		strings.Contains(msg, "no such host"):
		return GatewayNetwork
	case strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "api key") ||
		strings.Contains(msg, "authentication"):
		return GatewayAuth
	default:
		return GatewayGeneric
	}
}

// gatewayErrorMessages are the learner-facing texts broadcast with role
// "error" when a gateway call fails.
var gatewayErrorMessages = map[GatewayErrorKind]string{
	GatewayTimeout: "The tutor is taking too long to respond. Please try sending your message again.",
	GatewayNetwork: "The tutor is temporarily unreachable. Please check your connection and try again.",
	GatewayAuth:    "The tutoring service is not available right now. Please contact support.",
	GatewayGeneric: "Something went wrong while generating a response. Please try again.",
}

// GatewayErrorMessage returns the broadcastable message for a failure kind.
func GatewayErrorMessage(kind GatewayErrorKind) string {
	if msg, ok := gatewayErrorMessages[kind]; ok {
		return msg
	}
	return gatewayErrorMessages[GatewayGeneric]
}
