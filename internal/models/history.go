package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is the frozen copy of a reminder that expired, plus when it was moved.
// Records are append-only.
type HistoryRecord struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Title        string     `json:"title"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	MovedAt      time.Time  `json:"moved_at"`
}

// NewHistoryRecord copies every field of r and stamps movedAt.
func NewHistoryRecord(r Reminder, movedAt time.Time) HistoryRecord {
	return HistoryRecord{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		ReminderTime: r.ReminderTime,
		Completed:    r.Completed,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		MovedAt:      movedAt,
	}
}

// Reminder returns the reminder as it was when archived.
func (h HistoryRecord) Reminder() Reminder {
	return Reminder{
		ID:           h.ID,
		UserID:       h.UserID,
		Title:        h.Title,
		ReminderTime: h.ReminderTime,
		Completed:    h.Completed,
		CompletedAt:  h.CompletedAt,
		CreatedAt:    h.CreatedAt,
		UpdatedAt:    h.UpdatedAt,
	}
}

// HistoryKind names what a history entry refers to.
type HistoryKind string

const (
	HistoryKindTask     HistoryKind = "task"
	HistoryKindReminder HistoryKind = "reminder"
	HistoryKindList     HistoryKind = "list"
)

// HistorySource says how an item reached the history view.
type HistorySource string

const (
	// HistorySourceArchived is an expired reminder moved by the lifecycle manager.
	HistorySourceArchived HistorySource = "archived"
	// HistorySourceCompleted is an item the user checked off.
	HistorySourceCompleted HistorySource = "completed"
)

// HistoryEntry is one row of the history view.
type HistoryEntry struct {
	Kind   HistoryKind   `json:"kind"`
	Source HistorySource `json:"source"`
	ID     uuid.UUID     `json:"id"`
	Title  string        `json:"title"`
	// At is MovedAt for archived reminders and CompletedAt (or UpdatedAt) otherwise.
	At time.Time `json:"at"`
}
