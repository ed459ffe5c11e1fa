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

// TaskRepository handles task database operations
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, user_id, title, description, due_date, completed, completed_at, created_at, updated_at`

func scanTask(row scanner) (*models.Task, error) {
	task := &models.Task{}
	var description sql.NullString
	var dueDate, completedAt sql.NullTime
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&description,
		&dueDate,
		&task.Completed,
		&completedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		task.Description = &description.String
	}
	task.DueDate = timePtr(dueDate)
	task.CompletedAt = timePtr(completedAt)
	return task, nil
}

// CreateTask inserts a new task
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		nullTime(task.DueDate),
		task.Completed,
		nullTime(task.CompletedAt),
		task.CreatedAt,
		now,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return classifyPG("create", CollectionTasks, fmt.Errorf("failed to create task: %w", err))
	}
	return nil
}

// GetTask retrieves one of the user's tasks
func (r *TaskRepository) GetTask(ctx context.Context, userID, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError(CollectionTasks, id)
	}
	if err != nil {
		return nil, classifyPG("get", CollectionTasks, fmt.Errorf("failed to get task: %w", err))
	}
	return task, nil
}

// ListTasks returns the user's tasks, newest first
func (r *TaskRepository) ListTasks(ctx context.Context, userID uuid.UUID, filter TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}
	if filter.Completed != nil {
		query += " AND completed = $2"
		args = append(args, *filter.Completed)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPG("list", CollectionTasks, fmt.Errorf("failed to query tasks: %w", err))
	}
	defer func() { _ = rows.Close() }()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, classifyPG("list", CollectionTasks, fmt.Errorf("failed to scan task: %w", err))
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPG("list", CollectionTasks, err)
	}
	return tasks, nil
}

// UpdateTask saves every mutable field of task
func (r *TaskRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, due_date = $5, completed = $6, completed_at = $7, updated_at = $8
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		nullTime(task.DueDate),
		task.Completed,
		nullTime(task.CompletedAt),
		time.Now(),
	).Scan(&task.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFoundError(CollectionTasks, task.ID)
	}
	if err != nil {
		return classifyPG("update", CollectionTasks, fmt.Errorf("failed to update task: %w", err))
	}
	return nil
}

// DeleteTask removes one of the user's tasks
func (r *TaskRepository) DeleteTask(ctx context.Context, userID, id uuid.UUID) error {
	return deleteRow(ctx, r.db, "tasks", CollectionTasks, userID, id)
}

func deleteRow(ctx context.Context, db *DB, table, collection string, userID, id uuid.UUID) error {
	// table is always a package constant
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return classifyPG("delete", collection, fmt.Errorf("failed to delete from %s: %w", table, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classifyPG("delete", collection, err)
	}
	if n == 0 {
		return NotFoundError(collection, id)
	}
	return nil
}
