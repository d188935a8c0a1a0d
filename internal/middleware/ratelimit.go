package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit throttles the session surface. Sessions are per learner, so
// authenticated requests are keyed by user ID first; tenant and client IP
// are fallbacks for requests that carry less identity.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(sessionRateKey),
		httprate.WithLimitHandler(tooManySessionRequests),
	)
}

func sessionRateKey(r *http.Request) (string, error) {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID, nil
	}
	if tenantID := GetTenantID(r.Context()); tenantID != "" {
		return "tenant:" + tenantID, nil
	}
	return "ip:" + r.RemoteAddr, nil
}

func tooManySessionRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"too many session requests","retry_after":60}`))
}
