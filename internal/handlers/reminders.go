package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
)

// ReminderHandler handles reminder requests
type ReminderHandler struct {
	store database.ReminderStore
	now   func() time.Time
}

// NewReminderHandler creates a new reminder handler
func NewReminderHandler(store database.ReminderStore) *ReminderHandler {
	return &ReminderHandler{store: store, now: time.Now}
}

// RegisterRoutes registers reminder routes on a router already prefixed with /reminders.
func (h *ReminderHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListReminders).Methods("GET")
	r.HandleFunc("", h.CreateReminder).Methods("POST")
	r.HandleFunc("/{id}", h.GetReminder).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateReminder).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteReminder).Methods("DELETE")
	r.HandleFunc("/{id}/complete", h.CompleteReminder).Methods("POST")
}

// CreateReminderRequest represents a create reminder request. A missing
// reminder_time means the reminder never fires.
type CreateReminderRequest struct {
	Title        string     `json:"title" validate:"required,notblank,max=500"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"`
}

// UpdateReminderRequest represents a partial reminder update
type UpdateReminderRequest struct {
	Title        *string    `json:"title,omitempty" validate:"omitempty,notblank,max=500"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"`
	ClearTime    bool       `json:"clear_reminder_time,omitempty"`
}

// ListReminders lists pending reminders
func (h *ReminderHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	reminders, err := h.store.ListPendingReminders(r.Context(), user.ID)
	if err != nil {
		respondStoreError(w, err, "reminders")
		return
	}
	// Reminders past their time wait for the scanner but are no longer pending.
	now := h.now()
	pending := make([]*models.Reminder, 0, len(reminders))
	for _, reminder := range reminders {
		if reminder.Pending(now) {
			pending = append(pending, reminder)
		}
	}
	respondJSON(w, http.StatusOK, pending)
}

// CreateReminder creates a reminder
func (h *ReminderHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CreateReminderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	title, ok := cleanText(w, "Title", req.Title)
	if !ok {
		return
	}

	reminder := &models.Reminder{
		ID:           uuid.New(),
		UserID:       user.ID,
		Title:        title,
		ReminderTime: req.ReminderTime,
	}
	if err := h.store.CreateReminder(r.Context(), reminder); err != nil {
		respondStoreError(w, err, "reminder")
		return
	}
	respondJSON(w, http.StatusCreated, reminder)
}

// GetReminder returns one reminder. Archived reminders are no longer found
// here; they live in history.
func (h *ReminderHandler) GetReminder(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reminder, err := h.store.GetReminder(r.Context(), user.ID, id)
	if err != nil {
		respondStoreError(w, err, "reminder")
		return
	}
	respondJSON(w, http.StatusOK, reminder)
}

// UpdateReminder changes the title or time
func (h *ReminderHandler) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateReminderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reminder, err := h.store.GetReminder(r.Context(), user.ID, id)
	if err != nil {
		respondStoreError(w, err, "reminder")
		return
	}
	if !h.requireNotExpired(w, reminder) {
		return
	}
	if req.Title != nil {
		title, ok := cleanText(w, "Title", *req.Title)
		if !ok {
			return
		}
		reminder.Title = title
	}
	switch {
	case req.ClearTime:
		reminder.ReminderTime = nil
	case req.ReminderTime != nil:
		reminder.ReminderTime = req.ReminderTime
	}

	if err := h.store.UpdateReminder(r.Context(), reminder); err != nil {
		respondStoreError(w, err, "reminder")
		return
	}
	respondJSON(w, http.StatusOK, reminder)
}

// CompleteReminder marks a reminder done
func (h *ReminderHandler) CompleteReminder(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reminder, err := h.store.GetReminder(r.Context(), user.ID, id)
	if err != nil {
		respondStoreError(w, err, "reminder")
		return
	}
	if !h.requireNotExpired(w, reminder) {
		return
	}
	if !reminder.Completed {
		reminder.Complete(h.now())
		if err := h.store.UpdateReminder(r.Context(), reminder); err != nil {
			respondStoreError(w, err, "reminder")
			return
		}
	}
	respondJSON(w, http.StatusOK, reminder)
}

// requireNotExpired rejects changes to a reminder whose time has passed.
// Only the scanner moves it on, into history.
func (h *ReminderHandler) requireNotExpired(w http.ResponseWriter, reminder *models.Reminder) bool {
	if reminder.Expired(h.now()) {
		respondJSONError(w, http.StatusConflict, "Conflict", "Reminder has expired")
		return false
	}
	return true
}

// DeleteReminder deletes a reminder
func (h *ReminderHandler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteReminder(r.Context(), user.ID, id); err != nil {
		respondStoreError(w, err, "reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
