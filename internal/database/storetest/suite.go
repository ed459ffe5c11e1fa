// Package storetest holds the behaviour every database.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) database.Store

// Run exercises store against the shared behaviour.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("tasks", func(t *testing.T) { testTasks(t, newStore(t)) })
	t.Run("checklists", func(t *testing.T) { testChecklists(t, newStore(t)) })
	t.Run("reminders", func(t *testing.T) { testReminders(t, newStore(t)) })
	t.Run("archive", func(t *testing.T) { testArchive(t, newStore(t)) })
	t.Run("subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
}

func testTasks(t *testing.T, s database.Store) {
	ctx := context.Background()
	user := uuid.New()

	task := &models.Task{UserID: user, Title: "comprar pan"}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.ID == uuid.Nil {
		t.Fatal("CreateTask() should assign an ID")
	}

	got, err := s.GetTask(ctx, user, task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Title != "comprar pan" {
		t.Errorf("Title = %q, want %q", got.Title, "comprar pan")
	}

	if _, err := s.GetTask(ctx, uuid.New(), task.ID); !database.IsNotFound(err) {
		t.Errorf("GetTask() for another user error = %v, want not found", err)
	}

	got.SetCompleted(true, time.Now())
	if err := s.UpdateTask(ctx, got); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	done := true
	completed, err := s.ListTasks(ctx, user, database.TaskFilter{Completed: &done})
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(completed) != 1 || completed[0].ID != task.ID {
		t.Errorf("ListTasks(completed) = %v, want the updated task", completed)
	}

	if err := s.DeleteTask(ctx, user, task.ID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if err := s.DeleteTask(ctx, user, task.ID); !database.IsNotFound(err) {
		t.Errorf("second DeleteTask() error = %v, want not found", err)
	}
}

func testChecklists(t *testing.T, s database.Store) {
	ctx := context.Background()
	user := uuid.New()

	list := &models.Checklist{UserID: user, Title: "compras", Sections: models.NewSections([]string{"pan", "leche"})}
	if err := s.CreateChecklist(ctx, list); err != nil {
		t.Fatalf("CreateChecklist() error = %v", err)
	}

	updated, err := s.MutateChecklist(ctx, user, list.ID, func(l *models.Checklist) error {
		return l.ToggleSection(1, time.Now())
	})
	if err != nil {
		t.Fatalf("MutateChecklist() error = %v", err)
	}
	if !updated.Sections[1].Completed {
		t.Errorf("section 1 should be completed, got %+v", updated.Sections)
	}

	_, err = s.MutateChecklist(ctx, user, list.ID, func(l *models.Checklist) error {
		return l.RemoveSection(5, time.Now())
	})
	if !errors.Is(err, models.ErrSectionIndex) {
		t.Errorf("MutateChecklist(bad index) error = %v, want ErrSectionIndex", err)
	}

	stored, err := s.GetChecklist(ctx, user, list.ID)
	if err != nil {
		t.Fatalf("GetChecklist() error = %v", err)
	}
	if len(stored.Sections) != 2 || !stored.Sections[1].Completed {
		t.Errorf("failed mutation must leave the list untouched, got %+v", stored.Sections)
	}

	empty := &models.Checklist{UserID: user, Title: "vacía"}
	if err := s.CreateChecklist(ctx, empty); err != nil {
		t.Fatalf("CreateChecklist(empty) error = %v", err)
	}
	lists, err := s.ListChecklists(ctx, user)
	if err != nil {
		t.Fatalf("ListChecklists() error = %v", err)
	}
	if len(lists) != 2 {
		t.Errorf("ListChecklists() returned %d lists, want 2", len(lists))
	}

	if err := s.DeleteChecklist(ctx, user, list.ID); err != nil {
		t.Fatalf("DeleteChecklist() error = %v", err)
	}
	if _, err := s.GetChecklist(ctx, user, list.ID); !database.IsNotFound(err) {
		t.Errorf("GetChecklist() after delete error = %v, want not found", err)
	}
}

func testReminders(t *testing.T, s database.Store) {
	ctx := context.Background()
	user := uuid.New()
	later := time.Now().Add(time.Hour).Truncate(time.Second)

	open := &models.Reminder{UserID: user, Title: "llamar a juan", ReminderTime: &later}
	undated := &models.Reminder{UserID: user, Title: "regar plantas"}
	for _, r := range []*models.Reminder{open, undated} {
		if err := s.CreateReminder(ctx, r); err != nil {
			t.Fatalf("CreateReminder(%q) error = %v", r.Title, err)
		}
	}

	pending, err := s.ListPendingReminders(ctx, user)
	if err != nil {
		t.Fatalf("ListPendingReminders() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("ListPendingReminders() returned %d, want 2", len(pending))
	}

	users, err := s.UsersWithPendingReminders(ctx)
	if err != nil {
		t.Fatalf("UsersWithPendingReminders() error = %v", err)
	}
	if !containsUser(users, user) {
		t.Errorf("UsersWithPendingReminders() = %v, want it to include %s", users, user)
	}

	undated.Complete(time.Now())
	if err := s.UpdateReminder(ctx, undated); err != nil {
		t.Fatalf("UpdateReminder() error = %v", err)
	}
	done, err := s.ListCompletedReminders(ctx, user)
	if err != nil {
		t.Fatalf("ListCompletedReminders() error = %v", err)
	}
	if len(done) != 1 || done[0].ID != undated.ID {
		t.Errorf("ListCompletedReminders() = %v, want the completed reminder", done)
	}

	if err := s.DeleteReminder(ctx, user, open.ID); err != nil {
		t.Fatalf("DeleteReminder() error = %v", err)
	}
	if _, err := s.GetReminder(ctx, user, open.ID); !database.IsNotFound(err) {
		t.Errorf("GetReminder() after delete error = %v, want not found", err)
	}
}

func testArchive(t *testing.T, s database.Store) {
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().Truncate(time.Second)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expired := &models.Reminder{UserID: user, Title: "cita médica", ReminderTime: &past}
	upcoming := &models.Reminder{UserID: user, Title: "reunión", ReminderTime: &future}
	for _, r := range []*models.Reminder{expired, upcoming} {
		if err := s.CreateReminder(ctx, r); err != nil {
			t.Fatalf("CreateReminder(%q) error = %v", r.Title, err)
		}
	}

	gone := uuid.New()
	records, err := s.ArchiveReminders(ctx, user, []uuid.UUID{expired.ID, upcoming.ID, gone}, now)
	if err != nil {
		t.Fatalf("ArchiveReminders() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != expired.ID {
		t.Fatalf("ArchiveReminders() = %v, want only the expired reminder", records)
	}
	if !records[0].MovedAt.Equal(now) {
		t.Errorf("MovedAt = %v, want %v", records[0].MovedAt, now)
	}

	again, err := s.ArchiveReminders(ctx, user, []uuid.UUID{expired.ID}, now)
	if err != nil {
		t.Fatalf("repeated ArchiveReminders() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("repeated ArchiveReminders() = %v, want none", again)
	}

	if _, err := s.GetReminder(ctx, user, expired.ID); !database.IsNotFound(err) {
		t.Errorf("archived reminder still readable, err = %v", err)
	}
	history, err := s.ListHistory(ctx, user)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].Title != "cita médica" {
		t.Errorf("ListHistory() = %v, want the archived reminder", history)
	}
	if rt := history[0].ReminderTime; rt == nil || !rt.Equal(past) {
		t.Errorf("archived ReminderTime = %v, want %v", rt, past)
	}
}

func testSubscribe(t *testing.T, s database.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	user := uuid.New()

	ch, err := s.SubscribePending(ctx, user)
	if err != nil {
		t.Fatalf("SubscribePending() error = %v", err)
	}

	first := receive(t, ch)
	if len(first) != 0 {
		t.Fatalf("initial snapshot = %v, want empty", first)
	}

	r := &models.Reminder{UserID: user, Title: "sacar la basura"}
	if err := s.CreateReminder(ctx, r); err != nil {
		t.Fatalf("CreateReminder() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		var snap []*models.Reminder
		select {
		case snap = <-ch:
		case <-deadline:
			t.Fatal("no snapshot with the new reminder")
		}
		if len(snap) == 1 && snap[0].ID == r.ID {
			break
		}
	}

	cancel()
	for range ch {
	}
}

func receive(t *testing.T, ch <-chan []*models.Reminder) []*models.Reminder {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed early")
		}
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}

func containsUser(users []uuid.UUID, want uuid.UUID) bool {
	for _, u := range users {
		if u == want {
			return true
		}
	}
	return false
}
