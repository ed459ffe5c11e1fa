package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/request"
)

type mockVerifier struct {
	VerifyFunc func(ctx context.Context, token string) (*models.User, error)
}

var _ TokenVerifier = (*mockVerifier)(nil)

func (m *mockVerifier) Verify(ctx context.Context, token string) (*models.User, error) {
	return m.VerifyFunc(ctx, token)
}

func userEcho(t *testing.T, got **models.User) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = request.UserFromContext(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	t.Parallel()

	alice := &models.User{ID: uuid.New(), Subject: "alice"}
	verifier := &mockVerifier{VerifyFunc: func(_ context.Context, token string) (*models.User, error) {
		if token == "good" {
			return alice, nil
		}
		return nil, errors.New("bad signature")
	}}

	tests := []struct {
		name       string
		header     string
		target     string
		wantStatus int
		wantUser   *models.User
	}{
		{"valid bearer", "Bearer good", "/api/v1/tasks", http.StatusOK, alice},
		{"lowercase scheme", "bearer good", "/api/v1/tasks", http.StatusOK, alice},
		{"query token", "", "/api/v1/events?access_token=good", http.StatusOK, alice},
		{"missing", "", "/api/v1/tasks", http.StatusUnauthorized, nil},
		{"wrong scheme", "Basic good", "/api/v1/tasks", http.StatusUnauthorized, nil},
		{"invalid token", "Bearer bad", "/api/v1/tasks", http.StatusUnauthorized, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got *models.User
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Auth(verifier, zap.NewNop())(userEcho(t, &got)).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got != tt.wantUser {
				t.Errorf("user = %v, want %v", got, tt.wantUser)
			}
		})
	}
}

func TestDevAuth(t *testing.T) {
	t.Parallel()

	var got *models.User
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(DevUserHeader, "bob")
	DevAuth()(userEcho(t, &got)).ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.ID != models.UserIDFromSubject("bob") {
		t.Fatalf("user = %+v, want derived from bob", got)
	}

	DevAuth()(userEcho(t, &got)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if got == nil || got.Subject != DefaultDevSubject {
		t.Errorf("user = %+v, want default dev subject", got)
	}
}

func TestRateLimitPerUser(t *testing.T) {
	t.Parallel()

	store, err := NewLimiterStore(nil)
	if err != nil {
		t.Fatalf("NewLimiterStore() error = %v", err)
	}
	mw, err := RateLimit(store, "2-M", zap.NewNop())
	if err != nil {
		t.Fatalf("RateLimit() error = %v", err)
	}
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	send := func(u *models.User) int {
		req := httptest.NewRequest("POST", "/api/v1/assistant/commands", nil)
		req = req.WithContext(request.WithUser(req.Context(), u))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	alice := &models.User{ID: uuid.New()}
	bob := &models.User{ID: uuid.New()}
	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		if got := send(alice); got != want {
			t.Errorf("alice request %d status = %d, want %d", i, got, want)
		}
	}
	if got := send(bob); got != http.StatusOK {
		t.Errorf("bob status = %d, want 200 (separate bucket)", got)
	}
}

func TestRateLimitRejectsBadRate(t *testing.T) {
	t.Parallel()

	store, _ := NewLimiterStore(nil)
	if _, err := RateLimit(store, "lots", zap.NewNop()); err == nil {
		t.Fatal("RateLimit() error = nil, want invalid rate")
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantStatus  int
	}{
		{"GET without type", "GET", "", "{}", http.StatusOK},
		{"POST json", "POST", "application/json; charset=utf-8", "{}", http.StatusOK},
		{"POST missing", "POST", "", "{}", http.StatusBadRequest},
		{"POST without body", "POST", "", "", http.StatusOK},
		{"PATCH text", "PATCH", "text/plain", "{}", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			ContentType(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	t.Parallel()

	h := MaxRequestSize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 32))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	h := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"Request Timeout"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	h := CORS("https://app.example.com, http://localhost:3000", zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	tests := []struct {
		name      string
		origin    string
		wantAllow string
	}{
		{"configured origin", "https://app.example.com", "https://app.example.com"},
		{"default origin", "http://localhost:3000", "http://localhost:3000"},
		{"unknown origin", "https://evil.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}

	if got := ParseOrigins(" a , ,a,b"); len(got) != 3 {
		t.Errorf("ParseOrigins() = %v, want localhost plus a and b", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SecurityHeaders(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on plain HTTP")
	}
}
