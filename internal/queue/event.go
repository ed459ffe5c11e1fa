package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an event carried on the broker
type EventType string

const (
	// EventTypeReminderArchived is published after expired reminders move to history
	EventTypeReminderArchived EventType = "reminder_archived"
)

// DefaultEventTTL bounds how long an undelivered event stays useful to a UI.
const DefaultEventTTL = time.Hour

// Event is a lifecycle notification for one user
type Event struct {
	ID          uuid.UUID   `json:"id"`
	Type        EventType   `json:"type"`
	UserID      uuid.UUID   `json:"user_id"`
	ReminderIDs []uuid.UUID `json:"reminder_ids,omitempty"`
	MovedAt     *time.Time  `json:"moved_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	NotAfter    *time.Time  `json:"not_after,omitempty"` // Latest time to deliver (nil = no expiration)
}

// NewReminderArchivedEvent creates an event that expires after DefaultEventTTL
func NewReminderArchivedEvent(userID uuid.UUID, reminderIDs []uuid.UUID, movedAt time.Time) *Event {
	now := time.Now()
	notAfter := now.Add(DefaultEventTTL)
	return &Event{
		ID:          uuid.New(),
		Type:        EventTypeReminderArchived,
		UserID:      userID,
		ReminderIDs: reminderIDs,
		MovedAt:     &movedAt,
		CreatedAt:   now,
		NotAfter:    &notAfter,
	}
}

// IsExpired checks if the event is past its delivery window
func (e *Event) IsExpired(now time.Time) bool {
	return e.NotAfter != nil && now.After(*e.NotAfter)
}

// RoutingKey is the topic the event is published under
func (e *Event) RoutingKey() string {
	return "events." + string(e.Type)
}
