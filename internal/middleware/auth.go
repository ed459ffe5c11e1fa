package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/request"
)

// DevUserHeader names the subject when the server runs without JWKS_URL.
const DevUserHeader = "X-User-Subject"

// DefaultDevSubject is used when DevUserHeader is absent.
const DefaultDevSubject = "local-dev"

// TokenVerifier validates a bearer token and returns the user it names.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// Auth requires a valid bearer token. Browsers cannot set headers on an
// EventSource, so the access_token query parameter is accepted as well.
func Auth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Missing or malformed Authorization header")
				return
			}

			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Info("token_verification_failed", zap.String("error", logpkg.SanitizeError(err)))
				writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(r.Context(), user)))
		})
	}
}

// DevAuth trusts the DevUserHeader subject. Only for local runs.
func DevAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := strings.TrimSpace(r.Header.Get(DevUserHeader))
			if sub == "" {
				sub = DefaultDevSubject
			}
			user := &models.User{ID: models.UserIDFromSubject(sub), Subject: sub}
			next.ServeHTTP(w, r.WithContext(request.WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}
