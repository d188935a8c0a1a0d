package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRateKeyPrefersUserIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	key, err := sessionRateKey(req)
	require.NoError(t, err)
	assert.Equal(t, "ip:192.0.2.1:1234", key)

	ctx := context.WithValue(req.Context(), TenantIDKey, "tenant-1")
	key, err = sessionRateKey(req.WithContext(ctx))
	require.NoError(t, err)
	assert.Equal(t, "tenant:tenant-1", key)

	ctx = context.WithValue(ctx, UserIDKey, "user-1")
	key, err = sessionRateKey(req.WithContext(ctx))
	require.NoError(t, err)
	assert.Equal(t, "user:user-1", key)
}

func TestRateLimitThrottlesPerUser(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("user-1").Code)
	assert.Equal(t, http.StatusNoContent, send("user-1").Code)

	blocked := send("user-1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many session requests","retry_after":60}`, blocked.Body.String())

	// Another learner is keyed separately.
	assert.Equal(t, http.StatusNoContent, send("user-2").Code)
}
