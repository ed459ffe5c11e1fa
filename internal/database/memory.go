package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/models"
)

// MemoryStore is an in-process Store for local runs and tests. All
// operations, including archival, are serialized by one mutex.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	tasks     map[uuid.UUID]models.Task
	lists     map[uuid.UUID]models.Checklist
	reminders map[uuid.UUID]models.Reminder
	history   map[uuid.UUID]models.HistoryRecord
	subs      map[uuid.UUID]map[chan []*models.Reminder]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		tasks:     make(map[uuid.UUID]models.Task),
		lists:     make(map[uuid.UUID]models.Checklist),
		reminders: make(map[uuid.UUID]models.Reminder),
		history:   make(map[uuid.UUID]models.HistoryRecord),
		subs:      make(map[uuid.UUID]map[chan []*models.Reminder]struct{}),
	}
}

func (s *MemoryStore) stamp(id *uuid.UUID, created, updated *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	now := s.now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func cloneSections(in []models.Section) []models.Section {
	out := make([]models.Section, len(in))
	copy(out, in)
	return out
}

// CreateTask implements TaskStore
func (s *MemoryStore) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	s.tasks[task.ID] = *task
	return nil
}

// GetTask implements TaskStore
func (s *MemoryStore) GetTask(_ context.Context, userID, id uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return nil, NotFoundError(CollectionTasks, id)
	}
	return &t, nil
}

// ListTasks implements TaskStore
func (s *MemoryStore) ListTasks(_ context.Context, userID uuid.UUID, filter TaskFilter) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Task{}
	for _, t := range s.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateTask implements TaskStore
func (s *MemoryStore) UpdateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ID]
	if !ok || existing.UserID != task.UserID {
		return NotFoundError(CollectionTasks, task.ID)
	}
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = s.now()
	s.tasks[task.ID] = *task
	return nil
}

// DeleteTask implements TaskStore
func (s *MemoryStore) DeleteTask(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return NotFoundError(CollectionTasks, id)
	}
	delete(s.tasks, id)
	return nil
}

// CreateChecklist implements ChecklistStore
func (s *MemoryStore) CreateChecklist(_ context.Context, list *models.Checklist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&list.ID, &list.CreatedAt, &list.UpdatedAt)
	if list.Sections == nil {
		list.Sections = []models.Section{}
	}
	stored := *list
	stored.Sections = cloneSections(list.Sections)
	s.lists[list.ID] = stored
	return nil
}

// GetChecklist implements ChecklistStore
func (s *MemoryStore) GetChecklist(_ context.Context, userID, id uuid.UUID) (*models.Checklist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok || l.UserID != userID {
		return nil, NotFoundError(CollectionLists, id)
	}
	l.Sections = cloneSections(l.Sections)
	return &l, nil
}

// ListChecklists implements ChecklistStore
func (s *MemoryStore) ListChecklists(_ context.Context, userID uuid.UUID) ([]*models.Checklist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Checklist{}
	for _, l := range s.lists {
		if l.UserID != userID {
			continue
		}
		l := l
		l.Sections = cloneSections(l.Sections)
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MutateChecklist implements ChecklistStore
func (s *MemoryStore) MutateChecklist(_ context.Context, userID, id uuid.UUID, fn ChecklistMutation) (*models.Checklist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok || l.UserID != userID {
		return nil, NotFoundError(CollectionLists, id)
	}
	l.Sections = cloneSections(l.Sections)
	if err := fn(&l); err != nil {
		return nil, err
	}
	l.UpdatedAt = s.now()
	s.lists[id] = l
	out := l
	out.Sections = cloneSections(l.Sections)
	return &out, nil
}

// DeleteChecklist implements ChecklistStore
func (s *MemoryStore) DeleteChecklist(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok || l.UserID != userID {
		return NotFoundError(CollectionLists, id)
	}
	delete(s.lists, id)
	return nil
}

// CreateReminder implements ReminderStore
func (s *MemoryStore) CreateReminder(_ context.Context, r *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	s.reminders[r.ID] = *r
	s.publishLocked(r.UserID)
	return nil
}

// GetReminder implements ReminderStore
func (s *MemoryStore) GetReminder(_ context.Context, userID, id uuid.UUID) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.UserID != userID {
		return nil, NotFoundError(CollectionReminders, id)
	}
	return &r, nil
}

// UpdateReminder implements ReminderStore
func (s *MemoryStore) UpdateReminder(_ context.Context, r *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.reminders[r.ID]
	if !ok || existing.UserID != r.UserID {
		return NotFoundError(CollectionReminders, r.ID)
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.now()
	s.reminders[r.ID] = *r
	s.publishLocked(r.UserID)
	return nil
}

// DeleteReminder implements ReminderStore
func (s *MemoryStore) DeleteReminder(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.UserID != userID {
		return NotFoundError(CollectionReminders, id)
	}
	delete(s.reminders, id)
	s.publishLocked(userID)
	return nil
}

func (s *MemoryStore) remindersLocked(userID uuid.UUID, completed bool) []*models.Reminder {
	out := []*models.Reminder{}
	for _, r := range s.reminders {
		if r.UserID == userID && r.Completed == completed {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ReminderTime, out[j].ReminderTime
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out
}

// ListPendingReminders implements ReminderStore
func (s *MemoryStore) ListPendingReminders(_ context.Context, userID uuid.UUID) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remindersLocked(userID, false), nil
}

// ListCompletedReminders implements ReminderStore
func (s *MemoryStore) ListCompletedReminders(_ context.Context, userID uuid.UUID) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remindersLocked(userID, true), nil
}

// UsersWithPendingReminders implements ReminderStore
func (s *MemoryStore) UsersWithPendingReminders(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var users []uuid.UUID
	for _, r := range s.reminders {
		if r.Completed {
			continue
		}
		if _, ok := seen[r.UserID]; !ok {
			seen[r.UserID] = struct{}{}
			users = append(users, r.UserID)
		}
	}
	return users, nil
}

// SubscribePending implements ReminderStore
func (s *MemoryStore) SubscribePending(ctx context.Context, userID uuid.UUID) (<-chan []*models.Reminder, error) {
	ch := make(chan []*models.Reminder, 1)

	s.mu.Lock()
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[chan []*models.Reminder]struct{})
	}
	s.subs[userID][ch] = struct{}{}
	ch <- s.remindersLocked(userID, false)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs[userID], ch)
		if len(s.subs[userID]) == 0 {
			delete(s.subs, userID)
		}
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// publishLocked sends the current pending snapshot to the user's subscribers.
// Callers hold s.mu, which also makes it the only sender on each channel.
func (s *MemoryStore) publishLocked(userID uuid.UUID) {
	subs := s.subs[userID]
	if len(subs) == 0 {
		return
	}
	snap := s.remindersLocked(userID, false)
	for ch := range subs {
		OfferSnapshot(ch, snap)
	}
}

// ArchiveReminders implements HistoryStore
func (s *MemoryStore) ArchiveReminders(_ context.Context, userID uuid.UUID, ids []uuid.UUID, movedAt time.Time) ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var archived []models.HistoryRecord
	for _, id := range ids {
		r, ok := s.reminders[id]
		if !ok || r.UserID != userID || !r.Expired(movedAt) {
			continue
		}
		if _, dup := s.history[id]; dup {
			continue
		}
		rec := models.NewHistoryRecord(r, movedAt)
		s.history[id] = rec
		delete(s.reminders, id)
		archived = append(archived, rec)
	}
	if len(archived) > 0 {
		s.publishLocked(userID)
	}
	return archived, nil
}

// ListHistory implements HistoryStore
func (s *MemoryStore) ListHistory(_ context.Context, userID uuid.UUID) ([]*models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.HistoryRecord{}
	for _, h := range s.history {
		if h.UserID == userID {
			h := h
			out = append(out, &h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MovedAt.After(out[j].MovedAt) })
	return out, nil
}

// Ping implements Store
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store
func (s *MemoryStore) Close() error { return nil }
