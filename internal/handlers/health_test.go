package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		mode       string
		checks     map[string]HealthCheck
		wantStatus int
		wantState  string
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips checks",
			checks:     map[string]HealthCheck{"database": broken},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name:       "extended all healthy",
			mode:       "extended",
			checks:     map[string]HealthCheck{"database": healthy, "redis": healthy},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
			wantChecks: map[string]string{"database": "healthy", "redis": "healthy"},
		},
		{
			name:       "extended with a failing dependency",
			mode:       "extended",
			checks:     map[string]HealthCheck{"database": healthy, "rabbitmq": broken},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
			wantChecks: map[string]string{"database": "healthy", "rabbitmq": "unhealthy: connection refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := "/healthz"
			if tt.mode != "" {
				path += "?mode=" + tt.mode
			}
			w := httptest.NewRecorder()
			NewHealthChecker(tt.checks).HealthCheck(w, httptest.NewRequest("GET", path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantState)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("Checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("Checks[%s] = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestHealthCheckerAppliesDeadline(t *testing.T) {
	t.Parallel()

	var hadDeadline bool
	checks := map[string]HealthCheck{"database": func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}}
	w := httptest.NewRecorder()
	NewHealthChecker(checks).HealthCheck(w, httptest.NewRequest("GET", "/healthz?mode=extended", nil))
	if !hadDeadline {
		t.Error("check ran without a deadline")
	}
}
