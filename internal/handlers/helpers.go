package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/request"
	"github.com/benvon/voice-todo/internal/validation"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage truncates messages so internal detail can't leak
func sanitizeErrorMessage(message string) string {
	if len(message) > 200 {
		return message[:200] + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondStoreError maps a persistence failure onto a status code.
func respondStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case database.IsNotFound(err):
		respondJSONError(w, http.StatusNotFound, "Not Found", what+" not found")
	case errors.Is(err, models.ErrSectionIndex):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Section index out of range")
	case database.IsConflict(err):
		respondJSONError(w, http.StatusConflict, "Conflict", "Concurrent update, please retry")
	default:
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to access "+what)
	}
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return nil, false
	}
	return user, true
}

// pathID parses the {id} route variable or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes and validates a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}
	if err := validation.Validate.Struct(dst); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed: "+validation.Describe(err))
		return false
	}
	return true
}

// cleanText sanitizes a user-supplied title and rejects it when nothing is left.
func cleanText(w http.ResponseWriter, field, value string) (string, bool) {
	value = validation.SanitizeText(value)
	if value == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", field+" is required and cannot be empty after sanitization")
		return "", false
	}
	return value, true
}
