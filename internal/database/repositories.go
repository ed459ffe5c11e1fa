package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/models"
)

// Collection names, shared by every backend.
const (
	CollectionTasks     = "tasks"
	CollectionLists     = "lists"
	CollectionReminders = "reminders"
	CollectionHistory   = "history"
)

// TaskFilter narrows ListTasks. A nil Completed returns every task.
type TaskFilter struct {
	Completed *bool
}

// TaskStore persists tasks
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, userID, id uuid.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID, filter TaskFilter) ([]*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, userID, id uuid.UUID) error
}

// ChecklistMutation edits a checklist in place. Returning an error aborts the
// change.
type ChecklistMutation func(list *models.Checklist) error

// ChecklistStore persists checklists
type ChecklistStore interface {
	CreateChecklist(ctx context.Context, list *models.Checklist) error
	GetChecklist(ctx context.Context, userID, id uuid.UUID) (*models.Checklist, error)
	ListChecklists(ctx context.Context, userID uuid.UUID) ([]*models.Checklist, error)
	// MutateChecklist applies fn to the current stored list and saves the
	// result in one atomic step, so section indexes are checked against the
	// latest state.
	MutateChecklist(ctx context.Context, userID, id uuid.UUID, fn ChecklistMutation) (*models.Checklist, error)
	DeleteChecklist(ctx context.Context, userID, id uuid.UUID) error
}

// ReminderStore persists reminders and streams the pending set
type ReminderStore interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, userID, id uuid.UUID) (*models.Reminder, error)
	UpdateReminder(ctx context.Context, r *models.Reminder) error
	DeleteReminder(ctx context.Context, userID, id uuid.UUID) error
	// ListPendingReminders returns the user's uncompleted reminders, including
	// ones whose time has passed but that have not been archived yet.
	ListPendingReminders(ctx context.Context, userID uuid.UUID) ([]*models.Reminder, error)
	ListCompletedReminders(ctx context.Context, userID uuid.UUID) ([]*models.Reminder, error)
	// SubscribePending emits the pending set immediately and again after each
	// change. Only the latest snapshot is kept for slow readers. The channel
	// closes when ctx ends.
	SubscribePending(ctx context.Context, userID uuid.UUID) (<-chan []*models.Reminder, error)
	// UsersWithPendingReminders lists users that own at least one pending reminder.
	UsersWithPendingReminders(ctx context.Context) ([]uuid.UUID, error)
}

// HistoryStore holds archived reminders
type HistoryStore interface {
	// ArchiveReminders moves the given reminders to history in one
	// transaction. Reminders that are gone, completed or no longer expired at
	// movedAt are skipped, so repeating a call is a no-op. It returns the
	// records written.
	ArchiveReminders(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, movedAt time.Time) ([]models.HistoryRecord, error)
	ListHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryRecord, error)
}

// Store is the complete persistence surface used by the application.
type Store interface {
	TaskStore
	ChecklistStore
	ReminderStore
	HistoryStore
	Ping(ctx context.Context) error
	Close() error
}

// OfferSnapshot delivers snap on a one-slot channel, replacing any snapshot
// the reader has not taken yet. Only one goroutine may send on ch.
func OfferSnapshot(ch chan []*models.Reminder, snap []*models.Reminder) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
