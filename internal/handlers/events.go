package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/queue"
)

// DefaultKeepAlive is how often an idle stream sends a comment line.
const DefaultKeepAlive = 25 * time.Second

// Subscriber hands out per-user event streams
type Subscriber interface {
	Subscribe(userID uuid.UUID) (<-chan *queue.Event, func())
}

// EventsHandler streams lifecycle events to the UI as server-sent events
type EventsHandler struct {
	bus       Subscriber
	logger    *zap.Logger
	keepAlive time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(bus Subscriber, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger, keepAlive: DefaultKeepAlive}
}

// RegisterRoutes registers the stream on a router already prefixed with /events.
func (h *EventsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.Stream).Methods("GET")
}

// Stream writes one SSE message per event until the client goes away.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Streaming not supported")
		return
	}

	events, cancel := h.bus.Subscribe(user.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("event_encode_failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, payload)
			flusher.Flush()
		}
	}
}
