package models

import (
	"time"

	"github.com/google/uuid"
)

// Reminder fires at ReminderTime. A reminder without a time never expires.
type Reminder struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Title        string     `json:"title"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Pending reports whether the reminder is still waiting to fire at now.
func (r *Reminder) Pending(now time.Time) bool {
	return !r.Completed && !r.Expired(now)
}

// Expired reports whether an uncompleted reminder's time is strictly before now.
func (r *Reminder) Expired(now time.Time) bool {
	return !r.Completed && r.ReminderTime != nil && r.ReminderTime.Before(now)
}

// Complete marks the reminder as done by the user.
func (r *Reminder) Complete(now time.Time) {
	r.Completed = true
	r.CompletedAt = &now
	r.UpdatedAt = now
}
