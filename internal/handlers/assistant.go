package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/services/assistant"
)

// CommandRunner runs one assistant command
type CommandRunner interface {
	InterpretAndDispatch(ctx context.Context, userID uuid.UUID, utt models.Utterance) assistant.Response
}

// AssistantHandler accepts transcribed voice commands from the UI
type AssistantHandler struct {
	runner CommandRunner
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(runner CommandRunner) *AssistantHandler {
	return &AssistantHandler{runner: runner}
}

// RegisterRoutes registers assistant routes on a router already prefixed with /assistant.
func (h *AssistantHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/commands", h.PostCommand).Methods("POST")
	r.HandleFunc("/greeting", h.GetGreeting).Methods("GET")
}

// CommandRequest carries one final transcript
type CommandRequest struct {
	Text      string     `json:"text" validate:"required,notblank,max=2000"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
}

// PostCommand interprets and dispatches a command. Failures that already
// carry a spoken message are still answered with the envelope so the UI can
// speak them; only a busy user gets a non-2xx status.
func (h *AssistantHandler) PostCommand(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CommandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	text, ok := cleanText(w, "Text", req.Text)
	if !ok {
		return
	}

	utt := models.Utterance{Text: text, At: time.Now()}
	if req.SessionID != nil {
		utt.SessionID = *req.SessionID
	}

	resp := h.runner.InterpretAndDispatch(r.Context(), user.ID, utt)
	status := http.StatusOK
	if resp.Error == assistant.ErrorInFlight {
		status = http.StatusConflict
	}
	respondJSON(w, status, resp)
}

// GetGreeting returns the phrase spoken when a voice session opens
func (h *AssistantHandler) GetGreeting(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"confirmation_text": assistant.Greeting})
}
