package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout is the default request timeout (30 seconds)
	DefaultRequestTimeout = 30 * time.Second
)

// Timeout bounds handler run time. The handler's context is cancelled at the
// deadline and the client gets a 503 envelope. Streaming routes must not use it.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	body, _ := json.Marshal(newErrorResponse(nil, "Request Timeout", "The request took too long to complete"))

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(jsonTimeoutBody(next), timeout, string(body))
	}
}

// jsonTimeoutBody pre-sets the content type so the timeout body is served as JSON.
func jsonTimeoutBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
