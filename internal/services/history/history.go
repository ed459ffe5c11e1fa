// Package history assembles the history view: reminders archived on expiry
// plus tasks, reminders and lists the user completed.
package history

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
)

// Store is the read surface the history view needs.
type Store interface {
	ListHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryRecord, error)
	ListTasks(ctx context.Context, userID uuid.UUID, filter database.TaskFilter) ([]*models.Task, error)
	ListCompletedReminders(ctx context.Context, userID uuid.UUID) ([]*models.Reminder, error)
	ListChecklists(ctx context.Context, userID uuid.UUID) ([]*models.Checklist, error)
}

// Service reads history entries
type Service struct {
	store Store
}

// NewService creates a history service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// View is the history grouped the way the UI shows it.
type View struct {
	Archived           []*models.HistoryRecord `json:"archived"`
	CompletedTasks     []*models.Task          `json:"completed_tasks"`
	CompletedReminders []*models.Reminder      `json:"completed_reminders"`
	CompletedLists     []*models.Checklist     `json:"completed_lists"`
}

// Entries flattens the view into one list, newest first.
func (v *View) Entries() []models.HistoryEntry {
	var out []models.HistoryEntry
	for _, h := range v.Archived {
		out = append(out, models.HistoryEntry{
			Kind: models.HistoryKindReminder, Source: models.HistorySourceArchived,
			ID: h.ID, Title: h.Title, At: h.MovedAt,
		})
	}
	for _, t := range v.CompletedTasks {
		at := t.UpdatedAt
		if t.CompletedAt != nil {
			at = *t.CompletedAt
		}
		out = append(out, models.HistoryEntry{
			Kind: models.HistoryKindTask, Source: models.HistorySourceCompleted,
			ID: t.ID, Title: t.Title, At: at,
		})
	}
	for _, r := range v.CompletedReminders {
		at := r.UpdatedAt
		if r.CompletedAt != nil {
			at = *r.CompletedAt
		}
		out = append(out, models.HistoryEntry{
			Kind: models.HistoryKindReminder, Source: models.HistorySourceCompleted,
			ID: r.ID, Title: r.Title, At: at,
		})
	}
	for _, l := range v.CompletedLists {
		out = append(out, models.HistoryEntry{
			Kind: models.HistoryKindList, Source: models.HistorySourceCompleted,
			ID: l.ID, Title: l.Title, At: l.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}

// Load reads the four sources concurrently.
func (s *Service) Load(ctx context.Context, userID uuid.UUID) (*View, error) {
	v := &View{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		v.Archived, err = s.store.ListHistory(ctx, userID)
		return err
	})
	g.Go(func() error {
		done := true
		var err error
		v.CompletedTasks, err = s.store.ListTasks(ctx, userID, database.TaskFilter{Completed: &done})
		return err
	})
	g.Go(func() error {
		var err error
		v.CompletedReminders, err = s.store.ListCompletedReminders(ctx, userID)
		return err
	})
	g.Go(func() error {
		lists, err := s.store.ListChecklists(ctx, userID)
		if err != nil {
			return err
		}
		v.CompletedLists = []*models.Checklist{}
		for _, l := range lists {
			if l.Completed {
				v.CompletedLists = append(v.CompletedLists, l)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return v, nil
}
