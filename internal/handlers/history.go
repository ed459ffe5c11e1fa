package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/services/history"
)

// HistoryLoader builds a user's history view
type HistoryLoader interface {
	Load(ctx context.Context, userID uuid.UUID) (*history.View, error)
}

// HistoryHandler serves the history screen
type HistoryHandler struct {
	loader HistoryLoader
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(loader HistoryLoader) *HistoryHandler {
	return &HistoryHandler{loader: loader}
}

// RegisterRoutes registers history routes on a router already prefixed with /history.
func (h *HistoryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetHistory).Methods("GET")
}

// HistoryResponse is the grouped view plus a flattened, newest-first timeline
type HistoryResponse struct {
	*history.View
	Entries []models.HistoryEntry `json:"entries"`
}

// GetHistory returns archived reminders and completed items
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	view, err := h.loader.Load(r.Context(), user.ID)
	if err != nil {
		respondStoreError(w, err, "history")
		return
	}
	entries := view.Entries()
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{View: view, Entries: entries})
}
