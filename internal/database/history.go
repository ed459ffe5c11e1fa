package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/benvon/voice-todo/internal/models"
)

// HistoryRepository handles archived reminders
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ArchiveReminders deletes the expired reminders among ids and inserts their
// history records in one SERIALIZABLE transaction. Only rows the DELETE
// actually removed are copied, so concurrent or repeated calls cannot produce
// duplicates.
func (r *HistoryRepository) ArchiveReminders(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, movedAt time.Time) ([]models.HistoryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		idStrings = append(idStrings, id.String())
	}

	var archived []models.HistoryRecord
	err := r.db.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(tx *sql.Tx) error {
		archived = archived[:0]
		rows, err := tx.QueryContext(ctx, `
			DELETE FROM reminders
			WHERE user_id = $1
			  AND id = ANY($2::uuid[])
			  AND completed = FALSE
			  AND reminder_time IS NOT NULL
			  AND reminder_time < $3
			RETURNING `+reminderColumns,
			userID, pq.Array(idStrings), movedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to delete expired reminders: %w", err)
		}
		var removed []*models.Reminder
		for rows.Next() {
			rem, err := scanReminder(rows)
			if err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan archived reminder: %w", err)
			}
			removed = append(removed, rem)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, rem := range removed {
			rec := models.NewHistoryRecord(*rem, movedAt)
			_, err := tx.ExecContext(ctx, `
				INSERT INTO reminder_history
					(id, user_id, title, reminder_time, completed, completed_at, created_at, updated_at, moved_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO NOTHING`,
				rec.ID, rec.UserID, rec.Title, nullTime(rec.ReminderTime), rec.Completed,
				nullTime(rec.CompletedAt), rec.CreatedAt, rec.UpdatedAt, rec.MovedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert history record: %w", err)
			}
			archived = append(archived, rec)
		}
		return nil
	})
	if err != nil {
		return nil, classifyPG("archive", CollectionHistory, err)
	}
	return archived, nil
}

// ListHistory returns the user's archived reminders, most recently moved first
func (r *HistoryRepository) ListHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, reminder_time, completed, completed_at, created_at, updated_at, moved_at
		FROM reminder_history
		WHERE user_id = $1
		ORDER BY moved_at DESC`, userID)
	if err != nil {
		return nil, classifyPG("list", CollectionHistory, fmt.Errorf("failed to query history: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := []*models.HistoryRecord{}
	for rows.Next() {
		h := &models.HistoryRecord{}
		var reminderTime, completedAt sql.NullTime
		if err := rows.Scan(&h.ID, &h.UserID, &h.Title, &reminderTime, &h.Completed, &completedAt,
			&h.CreatedAt, &h.UpdatedAt, &h.MovedAt); err != nil {
			return nil, classifyPG("list", CollectionHistory, fmt.Errorf("failed to scan history: %w", err))
		}
		h.ReminderTime = timePtr(reminderTime)
		h.CompletedAt = timePtr(completedAt)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPG("list", CollectionHistory, err)
	}
	return out, nil
}
