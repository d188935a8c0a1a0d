// Package handler provides the plain HTTP endpoints of the API server.
package handler

import (
	"net/http"

	natsclient "github.com/brightpath-edu/tutoring-platform/internal/nats"
)

// HealthHandler answers liveness and readiness probes for the session
// server.
type HealthHandler struct {
	natsClient *natsclient.Client
	relay      *natsclient.Relay
}

// NewHealthHandler creates a health handler over the broadcast backbone.
func NewHealthHandler(natsClient *natsclient.Client, relay *natsclient.Relay) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		relay:      relay,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready. An instance without the relay would silently
// miss broadcasts from other instances, so it must not take sessions.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient == nil || !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}
	if h.relay == nil || !h.relay.Active() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "broadcast relay not subscribed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
