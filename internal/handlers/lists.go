package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/validation"
)

// ListHandler handles checklist requests
type ListHandler struct {
	store database.ChecklistStore
	now   func() time.Time
}

// NewListHandler creates a new checklist handler
func NewListHandler(store database.ChecklistStore) *ListHandler {
	return &ListHandler{store: store, now: time.Now}
}

// RegisterRoutes registers checklist routes on a router already prefixed with /lists.
func (h *ListHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListChecklists).Methods("GET")
	r.HandleFunc("", h.CreateChecklist).Methods("POST")
	r.HandleFunc("/{id}", h.GetChecklist).Methods("GET")
	r.HandleFunc("/{id}", h.DeleteChecklist).Methods("DELETE")
	r.HandleFunc("/{id}/sections", h.AddSection).Methods("POST")
	r.HandleFunc("/{id}/sections/{index:[0-9]+}/toggle", h.ToggleSection).Methods("POST")
	r.HandleFunc("/{id}/sections/{index:[0-9]+}", h.DeleteSection).Methods("DELETE")
}

// CreateChecklistRequest represents a create checklist request
type CreateChecklistRequest struct {
	Title    string   `json:"title" validate:"required,notblank,max=500"`
	Sections []string `json:"sections" validate:"max=200,dive,max=1000"`
}

// AddSectionRequest appends one section
type AddSectionRequest struct {
	Text string `json:"text" validate:"required,notblank,max=1000"`
}

// ListChecklists lists the user's checklists
func (h *ListHandler) ListChecklists(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	lists, err := h.store.ListChecklists(r.Context(), user.ID)
	if err != nil {
		respondStoreError(w, err, "lists")
		return
	}
	respondJSON(w, http.StatusOK, lists)
}

// CreateChecklist creates a checklist with incomplete sections
func (h *ListHandler) CreateChecklist(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CreateChecklistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	title, ok := cleanText(w, "Title", req.Title)
	if !ok {
		return
	}

	items := make([]string, 0, len(req.Sections))
	for _, s := range req.Sections {
		if s = validation.SanitizeText(s); s != "" {
			items = append(items, s)
		}
	}

	list := &models.Checklist{
		ID:       uuid.New(),
		UserID:   user.ID,
		Title:    title,
		Sections: models.NewSections(items),
	}
	if err := h.store.CreateChecklist(r.Context(), list); err != nil {
		respondStoreError(w, err, "list")
		return
	}
	respondJSON(w, http.StatusCreated, list)
}

// GetChecklist returns one checklist
func (h *ListHandler) GetChecklist(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.store.GetChecklist(r.Context(), user.ID, id)
	if err != nil {
		respondStoreError(w, err, "list")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// DeleteChecklist deletes a checklist
func (h *ListHandler) DeleteChecklist(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteChecklist(r.Context(), user.ID, id); err != nil {
		respondStoreError(w, err, "list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSection appends a section
func (h *ListHandler) AddSection(w http.ResponseWriter, r *http.Request) {
	var req AddSectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	text, ok := cleanText(w, "Text", req.Text)
	if !ok {
		return
	}
	h.mutate(w, r, func(l *models.Checklist) error {
		l.AddSection(text, h.now())
		return nil
	})
}

// ToggleSection flips the section at {index}
func (h *ListHandler) ToggleSection(w http.ResponseWriter, r *http.Request) {
	index, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, func(l *models.Checklist) error {
		return l.ToggleSection(index, h.now())
	})
}

// DeleteSection removes the section at {index}
func (h *ListHandler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	index, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, func(l *models.Checklist) error {
		return l.RemoveSection(index, h.now())
	})
}

// mutate runs fn against the stored list in one atomic step, so the index is
// checked against the current sections rather than what the client last saw.
func (h *ListHandler) mutate(w http.ResponseWriter, r *http.Request, fn database.ChecklistMutation) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	list, err := h.store.MutateChecklist(r.Context(), user.ID, id, func(l *models.Checklist) error {
		if err := fn(l); err != nil {
			return err
		}
		l.Completed = len(l.Sections) > 0 && l.CompletedCount() == len(l.Sections)
		return nil
	})
	if err != nil {
		respondStoreError(w, err, "list")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func sectionIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || index < 0 {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid section index")
		return 0, false
	}
	return index, true
}
