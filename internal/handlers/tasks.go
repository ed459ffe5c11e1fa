package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
)

// TaskHandler handles task requests
type TaskHandler struct {
	store database.TaskStore
	now   func() time.Time
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(store database.TaskStore) *TaskHandler {
	return &TaskHandler{store: store, now: time.Now}
}

// RegisterRoutes registers task routes on a router already prefixed with /tasks.
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTasks).Methods("GET")
	r.HandleFunc("", h.CreateTask).Methods("POST")
	r.HandleFunc("/{id}", h.GetTask).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateTask).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteTask).Methods("DELETE")
	r.HandleFunc("/{id}/toggle", h.ToggleTask).Methods("POST")
}

// CreateTaskRequest represents a create task request
type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,notblank,max=500"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=10000"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskRequest represents a partial task update
type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,notblank,max=500"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=10000"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ClearDue    bool       `json:"clear_due_date,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
}

// ListTasks lists tasks, optionally filtered with ?completed=true|false
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var filter database.TaskFilter
	if c := r.URL.Query().Get("completed"); c != "" {
		completed, err := strconv.ParseBool(c)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "completed must be true or false")
			return
		}
		filter.Completed = &completed
	}

	tasks, err := h.store.ListTasks(r.Context(), user.ID, filter)
	if err != nil {
		respondStoreError(w, err, "tasks")
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}

// CreateTask creates a task
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	title, ok := cleanText(w, "Title", req.Title)
	if !ok {
		return
	}

	task := &models.Task{
		ID:          uuid.New(),
		UserID:      user.ID,
		Title:       title,
		Description: req.Description,
		DueDate:     req.DueDate,
	}
	if err := h.store.CreateTask(r.Context(), task); err != nil {
		respondStoreError(w, err, "task")
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

// GetTask returns one task
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	task, err := h.store.GetTask(r.Context(), user.ID, id)
	if err != nil {
		respondStoreError(w, err, "task")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// UpdateTask applies a partial update
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	task, err := h.store.GetTask(r.Context(), user.ID, id)
	if err != nil {
		respondStoreError(w, err, "task")
		return
	}

	if req.Title != nil {
		title, ok := cleanText(w, "Title", *req.Title)
		if !ok {
			return
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = req.Description
	}
	switch {
	case req.ClearDue:
		task.DueDate = nil
	case req.DueDate != nil:
		task.DueDate = req.DueDate
	}
	if req.Completed != nil && *req.Completed != task.Completed {
		task.SetCompleted(*req.Completed, h.now())
	}

	if err := h.store.UpdateTask(r.Context(), task); err != nil {
		respondStoreError(w, err, "task")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// ToggleTask flips completion
func (h *TaskHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	task, err := h.store.GetTask(r.Context(), user.ID, id)
	if err != nil {
		respondStoreError(w, err, "task")
		return
	}
	task.SetCompleted(!task.Completed, h.now())
	if err := h.store.UpdateTask(r.Context(), task); err != nil {
		respondStoreError(w, err, "task")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// DeleteTask deletes a task
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteTask(r.Context(), user.ID, id); err != nil {
		respondStoreError(w, err, "task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
