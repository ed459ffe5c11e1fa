package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/request"
)

// envelope mirrors the JSON written by respondJSON and respondJSONError.
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, w.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

// newTestRequest builds a JSON request, authenticated as user when non-nil.
func newTestRequest(method, path string, body any, user *models.User) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req = req.WithContext(request.WithUser(req.Context(), user))
	}
	return req
}

func testUser(subject string) *models.User {
	return &models.User{ID: models.UserIDFromSubject(subject), Subject: subject}
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		data     any
		wantData string
	}{
		{name: "object", status: http.StatusOK, data: map[string]string{"message": "hola"}, wantData: `{"message":"hola"}`},
		{name: "nil data", status: http.StatusCreated, data: nil, wantData: `null`},
		{name: "array", status: http.StatusOK, data: []string{"a", "b"}, wantData: `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSON(w, tt.status, tt.data)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			env := decodeEnvelope(t, w, nil)
			if !env.Success {
				t.Error("success = false, want true")
			}
			if string(env.Data) != tt.wantData {
				t.Errorf("data = %s, want %s", env.Data, tt.wantData)
			}
			if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
				t.Errorf("timestamp %q is not RFC3339: %v", env.Timestamp, err)
			}
		})
	}
}

func TestRespondJSONErrorTruncatesMessage(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSONError(w, http.StatusBadRequest, "Bad Request", strings.Repeat("x", 300))

	env := decodeEnvelope(t, w, nil)
	if env.Success || env.Error != "Bad Request" {
		t.Errorf("envelope = %+v", env)
	}
	if len(env.Message) != 203 || !strings.HasSuffix(env.Message, "...") {
		t.Errorf("message length = %d, want 203 with ellipsis", len(env.Message))
	}
}

func TestRespondStoreError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", database.NotFoundError(database.CollectionTasks, uuid.New()), http.StatusNotFound},
		{"section index", fmt.Errorf("toggle: %w", models.ErrSectionIndex), http.StatusBadRequest},
		{"conflict", &database.TransactionConflictError{Op: "archive", Err: errors.New("aborted")}, http.StatusConflict},
		{"persistence", &database.PersistenceError{Op: "get", Collection: "tasks", Err: errors.New("timeout")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondStoreError(w, tt.err, "task")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if env := decodeEnvelope(t, w, nil); strings.Contains(env.Message, "timeout") {
				t.Errorf("message leaks backend detail: %q", env.Message)
			}
		})
	}
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
	}{
		{name: "valid", body: `{"title":"comprar pan"}`, wantOK: true},
		{name: "unknown field", body: `{"title":"x","priority":1}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"title":`, wantStatus: http.StatusBadRequest},
		{name: "blank title", body: `{"title":"   "}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var dst CreateTaskRequest
			ok := decodeBody(w, req, &dst)
			if ok != tt.wantOK {
				t.Fatalf("decodeBody() = %v, want %v (body %s)", ok, tt.wantOK, w.Body.String())
			}
			if !ok && w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestDecodeBodyTooLarge(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"`+strings.Repeat("x", 64)+`"}`))
	req.Body = http.MaxBytesReader(w, req.Body, 16)

	var dst CreateTaskRequest
	if decodeBody(w, req, &dst) {
		t.Fatal("decodeBody() = true for oversized body")
	}
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestCurrentUserMissing(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	if _, ok := currentUser(w, httptest.NewRequest("GET", "/", nil)); ok {
		t.Fatal("currentUser() ok without a user in context")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
