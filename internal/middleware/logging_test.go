package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/benvon/voice-todo/internal/request"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		wantMessage   string
		wantLevel     zapcore.Level
	}{
		{"GET request", "GET", "/api/v1/tasks", http.StatusOK, "http_request", zapcore.InfoLevel},
		{"POST request", "POST", "/api/v1/assistant/commands", http.StatusCreated, "http_request", zapcore.InfoLevel},
		{"unauthorized", "GET", "/api/v1/tasks", http.StatusUnauthorized, "security_event", zapcore.WarnLevel},
		{"rate limited", "POST", "/api/v1/assistant/commands", http.StatusTooManyRequests, "rate_limit_violation", zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			var seenID string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenID = request.RequestID(r.Context())
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			if seenID == "" || w.Header().Get(request.RequestIDHeader) != seenID {
				t.Errorf("request ID %q not echoed (header %q)", seenID, w.Header().Get(request.RequestIDHeader))
			}
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			if entries[0].Message != tt.wantMessage || entries[0].Level != tt.wantLevel {
				t.Errorf("log = %s/%s, want %s/%s", entries[0].Level, entries[0].Message, tt.wantLevel, tt.wantMessage)
			}
			if got := entries[0].ContextMap()["status_code"]; got != int64(tt.handlerStatus) {
				t.Errorf("status_code field = %v", got)
			}
		})
	}
}

func TestLoggingKeepsIncomingRequestID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(request.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(w, req)

	if got := w.Header().Get(request.RequestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q, want abc-123", got)
	}
}

func TestLoggingResponseWriterFlushes(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Error("wrapped writer does not implement http.Flusher")
			return
		}
		_, _ = w.Write([]byte("data: x\n\n"))
		f.Flush()
	})

	w := httptest.NewRecorder()
	Logging(zap.NewNop())(handler).ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/events", nil))

	if !w.Flushed {
		t.Error("expected recorder to be flushed")
	}
}

func TestLoggingAddsTraceID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["trace_id"]; got != traceID.String() {
		t.Errorf("trace_id = %v, want %s", got, traceID)
	}
}
