package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/models"
)

// ReminderRepository handles reminder database operations
type ReminderRepository struct {
	db       *DB
	listener *ReminderListener
}

// NewReminderRepository creates a reminder repository. With a nil listener
// SubscribePending emits the initial snapshot only.
func NewReminderRepository(db *DB, listener *ReminderListener) *ReminderRepository {
	return &ReminderRepository{db: db, listener: listener}
}

const reminderColumns = `id, user_id, title, reminder_time, completed, completed_at, created_at, updated_at`

func scanReminder(row scanner) (*models.Reminder, error) {
	r := &models.Reminder{}
	var reminderTime, completedAt sql.NullTime
	if err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.Title,
		&reminderTime,
		&r.Completed,
		&completedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.ReminderTime = timePtr(reminderTime)
	r.CompletedAt = timePtr(completedAt)
	return r, nil
}

// CreateReminder inserts a new reminder
func (r *ReminderRepository) CreateReminder(ctx context.Context, rem *models.Reminder) error {
	query := `
		INSERT INTO reminders (` + reminderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}
	now := time.Now()
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = now
	}
	err := r.db.QueryRowContext(ctx, query,
		rem.ID,
		rem.UserID,
		rem.Title,
		nullTime(rem.ReminderTime),
		rem.Completed,
		nullTime(rem.CompletedAt),
		rem.CreatedAt,
		now,
	).Scan(&rem.CreatedAt, &rem.UpdatedAt)
	if err != nil {
		return classifyPG("create", CollectionReminders, fmt.Errorf("failed to create reminder: %w", err))
	}
	return nil
}

// GetReminder retrieves one of the user's reminders
func (r *ReminderRepository) GetReminder(ctx context.Context, userID, id uuid.UUID) (*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1 AND user_id = $2`
	rem, err := scanReminder(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError(CollectionReminders, id)
	}
	if err != nil {
		return nil, classifyPG("get", CollectionReminders, fmt.Errorf("failed to get reminder: %w", err))
	}
	return rem, nil
}

// UpdateReminder saves every mutable field of rem
func (r *ReminderRepository) UpdateReminder(ctx context.Context, rem *models.Reminder) error {
	query := `
		UPDATE reminders
		SET title = $3, reminder_time = $4, completed = $5, completed_at = $6, updated_at = $7
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		rem.ID,
		rem.UserID,
		rem.Title,
		nullTime(rem.ReminderTime),
		rem.Completed,
		nullTime(rem.CompletedAt),
		time.Now(),
	).Scan(&rem.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFoundError(CollectionReminders, rem.ID)
	}
	if err != nil {
		return classifyPG("update", CollectionReminders, fmt.Errorf("failed to update reminder: %w", err))
	}
	return nil
}

// DeleteReminder removes one of the user's reminders
func (r *ReminderRepository) DeleteReminder(ctx context.Context, userID, id uuid.UUID) error {
	return deleteRow(ctx, r.db, "reminders", CollectionReminders, userID, id)
}

func (r *ReminderRepository) listByCompleted(ctx context.Context, userID uuid.UUID, completed bool) ([]*models.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE user_id = $1 AND completed = $2
		ORDER BY reminder_time ASC NULLS LAST, created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, completed)
	if err != nil {
		return nil, classifyPG("list", CollectionReminders, fmt.Errorf("failed to query reminders: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := []*models.Reminder{}
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, classifyPG("list", CollectionReminders, fmt.Errorf("failed to scan reminder: %w", err))
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPG("list", CollectionReminders, err)
	}
	return out, nil
}

// ListPendingReminders returns uncompleted reminders, soonest first
func (r *ReminderRepository) ListPendingReminders(ctx context.Context, userID uuid.UUID) ([]*models.Reminder, error) {
	return r.listByCompleted(ctx, userID, false)
}

// ListCompletedReminders returns reminders the user checked off
func (r *ReminderRepository) ListCompletedReminders(ctx context.Context, userID uuid.UUID) ([]*models.Reminder, error) {
	return r.listByCompleted(ctx, userID, true)
}

// UsersWithPendingReminders lists distinct owners of uncompleted reminders
func (r *ReminderRepository) UsersWithPendingReminders(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM reminders WHERE completed = FALSE`)
	if err != nil {
		return nil, classifyPG("list", CollectionReminders, fmt.Errorf("failed to query reminder owners: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classifyPG("list", CollectionReminders, err)
		}
		users = append(users, id)
	}
	return users, classifyPG("list", CollectionReminders, rows.Err())
}

// SubscribePending re-queries the pending set whenever the reminders trigger
// fires for userID.
func (r *ReminderRepository) SubscribePending(ctx context.Context, userID uuid.UUID) (<-chan []*models.Reminder, error) {
	initial, err := r.ListPendingReminders(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make(chan []*models.Reminder, 1)
	out <- initial

	if r.listener == nil {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	changes, cancel := r.listener.Watch(userID)
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				snap, err := r.ListPendingReminders(ctx, userID)
				if err != nil {
					// the scanner's periodic tick covers a missed snapshot
					continue
				}
				OfferSnapshot(out, snap)
			}
		}
	}()
	return out, nil
}
