package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/models"
)

// ChecklistRepository handles checklist database operations
type ChecklistRepository struct {
	db *DB
}

// NewChecklistRepository creates a new checklist repository
func NewChecklistRepository(db *DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

const listColumns = `id, user_id, title, sections, completed, created_at, updated_at`

func scanChecklist(row scanner) (*models.Checklist, error) {
	list := &models.Checklist{}
	var sectionsJSON []byte
	if err := row.Scan(
		&list.ID,
		&list.UserID,
		&list.Title,
		&sectionsJSON,
		&list.Completed,
		&list.CreatedAt,
		&list.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sectionsJSON, &list.Sections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
	}
	if list.Sections == nil {
		list.Sections = []models.Section{}
	}
	return list, nil
}

func marshalSections(sections []models.Section) ([]byte, error) {
	if sections == nil {
		sections = []models.Section{}
	}
	return json.Marshal(sections)
}

// CreateChecklist inserts a new checklist
func (r *ChecklistRepository) CreateChecklist(ctx context.Context, list *models.Checklist) error {
	query := `
		INSERT INTO lists (` + listColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	sectionsJSON, err := marshalSections(list.Sections)
	if err != nil {
		return persistenceErr("create", CollectionLists, fmt.Errorf("failed to marshal sections: %w", err))
	}
	if list.ID == uuid.Nil {
		list.ID = uuid.New()
	}
	now := time.Now()
	if list.CreatedAt.IsZero() {
		list.CreatedAt = now
	}
	err = r.db.QueryRowContext(ctx, query,
		list.ID,
		list.UserID,
		list.Title,
		sectionsJSON,
		list.Completed,
		list.CreatedAt,
		now,
	).Scan(&list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return classifyPG("create", CollectionLists, fmt.Errorf("failed to create list: %w", err))
	}
	return nil
}

// GetChecklist retrieves one of the user's checklists
func (r *ChecklistRepository) GetChecklist(ctx context.Context, userID, id uuid.UUID) (*models.Checklist, error) {
	query := `SELECT ` + listColumns + ` FROM lists WHERE id = $1 AND user_id = $2`
	list, err := scanChecklist(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError(CollectionLists, id)
	}
	if err != nil {
		return nil, classifyPG("get", CollectionLists, fmt.Errorf("failed to get list: %w", err))
	}
	return list, nil
}

// ListChecklists returns the user's checklists, newest first
func (r *ChecklistRepository) ListChecklists(ctx context.Context, userID uuid.UUID) ([]*models.Checklist, error) {
	query := `SELECT ` + listColumns + ` FROM lists WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classifyPG("list", CollectionLists, fmt.Errorf("failed to query lists: %w", err))
	}
	defer func() { _ = rows.Close() }()

	lists := []*models.Checklist{}
	for rows.Next() {
		list, err := scanChecklist(rows)
		if err != nil {
			return nil, classifyPG("list", CollectionLists, fmt.Errorf("failed to scan list: %w", err))
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPG("list", CollectionLists, err)
	}
	return lists, nil
}

// MutateChecklist locks the row, applies fn and writes the result back.
func (r *ChecklistRepository) MutateChecklist(ctx context.Context, userID, id uuid.UUID, fn ChecklistMutation) (*models.Checklist, error) {
	var out *models.Checklist
	err := r.db.withTx(ctx, nil, func(tx *sql.Tx) error {
		query := `SELECT ` + listColumns + ` FROM lists WHERE id = $1 AND user_id = $2 FOR UPDATE`
		list, err := scanChecklist(tx.QueryRowContext(ctx, query, id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundError(CollectionLists, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock list: %w", err)
		}

		if err := fn(list); err != nil {
			return err
		}

		sectionsJSON, err := marshalSections(list.Sections)
		if err != nil {
			return fmt.Errorf("failed to marshal sections: %w", err)
		}
		list.UpdatedAt = time.Now()
		_, err = tx.ExecContext(ctx,
			`UPDATE lists SET title = $3, sections = $4, completed = $5, updated_at = $6 WHERE id = $1 AND user_id = $2`,
			list.ID, list.UserID, list.Title, sectionsJSON, list.Completed, list.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update list: %w", err)
		}
		out = list
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrSectionIndex) {
			return nil, err
		}
		return nil, classifyPG("mutate", CollectionLists, err)
	}
	return out, nil
}

// DeleteChecklist removes one of the user's checklists
func (r *ChecklistRepository) DeleteChecklist(ctx context.Context, userID, id uuid.UUID) error {
	return deleteRow(ctx, r.db, "lists", CollectionLists, userID, id)
}
