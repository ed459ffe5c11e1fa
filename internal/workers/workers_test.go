package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/queue"
)

// mockHistoryStore is a HistoryStore whose ArchiveReminders can be scripted.
type mockHistoryStore struct {
	archiveRemindersFunc func(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, movedAt time.Time) ([]models.HistoryRecord, error)
	listHistoryFunc      func(ctx context.Context, userID uuid.UUID) ([]*models.HistoryRecord, error)
}

var _ database.HistoryStore = (*mockHistoryStore)(nil)

func (m *mockHistoryStore) ArchiveReminders(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, movedAt time.Time) ([]models.HistoryRecord, error) {
	return m.archiveRemindersFunc(ctx, userID, ids, movedAt)
}

func (m *mockHistoryStore) ListHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryRecord, error) {
	if m.listHistoryFunc != nil {
		return m.listHistoryFunc(ctx, userID)
	}
	return nil, nil
}

func timeAt(t time.Time) *time.Time { return &t }

func TestPartitionExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 12, 12, 0, 0, 0, time.UTC)
	past := &models.Reminder{Title: "pasado", ReminderTime: timeAt(now.Add(-time.Second))}
	exact := &models.Reminder{Title: "ahora", ReminderTime: timeAt(now)}
	future := &models.Reminder{Title: "futuro", ReminderTime: timeAt(now.Add(time.Hour))}
	undated := &models.Reminder{Title: "sin hora"}
	done := &models.Reminder{Title: "hecho", ReminderTime: timeAt(now.Add(-time.Hour)), Completed: true}

	expired, pending := PartitionExpired([]*models.Reminder{past, exact, future, undated, done}, now)
	if len(expired) != 1 || expired[0] != past {
		t.Errorf("expired = %v, want only the past reminder", expired)
	}
	if len(pending) != 3 {
		t.Errorf("pending has %d reminders, want 3", len(pending))
	}
	for _, r := range pending {
		if r == done {
			t.Error("completed reminder must not be pending")
		}
	}
}

func TestArchiveUsesOneBatch(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	expired := []*models.Reminder{{ID: uuid.New()}, {ID: uuid.New()}}
	calls := 0
	store := &mockHistoryStore{archiveRemindersFunc: func(_ context.Context, gotUser uuid.UUID, ids []uuid.UUID, movedAt time.Time) ([]models.HistoryRecord, error) {
		calls++
		if gotUser != user || len(ids) != 2 || ids[0] != expired[0].ID {
			t.Errorf("ArchiveReminders(%s, %v)", gotUser, ids)
		}
		return []models.HistoryRecord{{ID: ids[0], MovedAt: movedAt}}, nil
	}}

	records, err := NewArchiver(store, nil).Archive(context.Background(), user, expired)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if calls != 1 || len(records) != 1 {
		t.Errorf("calls = %d, records = %d", calls, len(records))
	}

	if rec, err := NewArchiver(store, nil).Archive(context.Background(), user, nil); err != nil || rec != nil || calls != 1 {
		t.Errorf("empty batch should not touch the store: %v %v calls=%d", rec, err, calls)
	}
}

func TestScanOnceArchivesExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemoryStore()
	user := uuid.New()
	yesterday := time.Now().Add(-24 * time.Hour)
	tomorrow := time.Now().Add(24 * time.Hour)

	old := &models.Reminder{UserID: user, Title: "cita de ayer", ReminderTime: &yesterday}
	next := &models.Reminder{UserID: user, Title: "cita de mañana", ReminderTime: &tomorrow}
	undated := &models.Reminder{UserID: user, Title: "sin hora"}
	for _, r := range []*models.Reminder{old, next, undated} {
		if err := store.CreateReminder(ctx, r); err != nil {
			t.Fatalf("CreateReminder() error = %v", err)
		}
	}

	var events []ArchivedEvent
	scanner := NewExpiryScanner(store, NewArchiver(store, nil), user, time.Minute, func(_ context.Context, ev ArchivedEvent) {
		events = append(events, ev)
	}, nil)

	records, err := scanner.ScanOnce(ctx)
	if err != nil {
		t.Fatalf("ScanOnce() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != old.ID {
		t.Fatalf("records = %v, want the expired reminder", records)
	}
	rec := records[0]
	if rec.Title != old.Title || !rec.ReminderTime.Equal(yesterday) || rec.MovedAt.Before(yesterday) {
		t.Errorf("history record = %+v", rec)
	}
	if rec.Reminder() != *old {
		t.Errorf("history record must keep every reminder field: %+v vs %+v", rec.Reminder(), *old)
	}

	pending, _ := store.ListPendingReminders(ctx, user)
	if len(pending) != 2 {
		t.Errorf("pending = %d reminders, want 2", len(pending))
	}
	if _, err := store.GetReminder(ctx, user, old.ID); !database.IsNotFound(err) {
		t.Errorf("archived reminder still resolvable: %v", err)
	}

	again, err := scanner.ScanOnce(ctx)
	if err != nil || len(again) != 0 {
		t.Errorf("second scan = %v, %v, want no-op", again, err)
	}
	history, _ := store.ListHistory(ctx, user)
	if len(history) != 1 {
		t.Errorf("history has %d records, want 1", len(history))
	}
	if len(events) != 1 || len(events[0].ReminderIDs) != 1 || events[0].ReminderIDs[0] != old.ID {
		t.Errorf("events = %+v, want one event for the archived reminder", events)
	}
}

func TestScanConflictRetriedNextTick(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	r := &models.Reminder{ID: uuid.New(), UserID: user, ReminderTime: timeAt(time.Now().Add(-time.Minute))}
	attempts := 0
	store := &mockHistoryStore{archiveRemindersFunc: func(_ context.Context, _ uuid.UUID, ids []uuid.UUID, movedAt time.Time) ([]models.HistoryRecord, error) {
		attempts++
		if attempts == 1 {
			return nil, &database.TransactionConflictError{Op: "archive", Err: errors.New("40001")}
		}
		return []models.HistoryRecord{{ID: ids[0], MovedAt: movedAt}}, nil
	}}

	scanner := NewExpiryScanner(nil, NewArchiver(store, nil), user, time.Minute, nil, nil)
	scanner.latest = []*models.Reminder{r}

	scanner.scan(context.Background())
	if len(scanner.latest) != 1 {
		t.Fatal("a conflicted batch must stay queued for the next tick")
	}
	scanner.scan(context.Background())
	if attempts != 2 || len(scanner.latest) != 0 {
		t.Errorf("attempts = %d, latest = %v, want retried and cleared", attempts, scanner.latest)
	}
}

func TestExpiryScannerRunReactsToSnapshots(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := database.NewMemoryStore()
	user := uuid.New()

	archived := make(chan ArchivedEvent, 1)
	scanner := NewExpiryScanner(store, NewArchiver(store, nil), user, time.Hour, func(_ context.Context, ev ArchivedEvent) {
		archived <- ev
	}, nil)

	done := make(chan error, 1)
	go func() { done <- scanner.Run(ctx) }()

	past := time.Now().Add(-time.Minute)
	r := &models.Reminder{UserID: user, Title: "vencido", ReminderTime: &past}
	if err := store.CreateReminder(ctx, r); err != nil {
		t.Fatalf("CreateReminder() error = %v", err)
	}

	select {
	case ev := <-archived:
		if ev.UserID != user || len(ev.ReminderIDs) != 1 || ev.ReminderIDs[0] != r.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scanner did not archive the expired reminder")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestScanSupervisorStartsActorsPerUser(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	store := database.NewMemoryStore()

	past := time.Now().Add(-time.Minute)
	users := []uuid.UUID{uuid.New(), uuid.New()}
	for _, u := range users {
		if err := store.CreateReminder(ctx, &models.Reminder{UserID: u, Title: "vencido", ReminderTime: &past}); err != nil {
			t.Fatalf("CreateReminder() error = %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)
	got := make(chan struct{}, len(users))
	sup := NewScanSupervisor(store, time.Hour, func(_ context.Context, ev ArchivedEvent) {
		mu.Lock()
		seen[ev.UserID] = true
		mu.Unlock()
		got <- struct{}{}
	}, nil)

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	for range users {
		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatal("supervisor did not archive for every user")
		}
	}
	mu.Lock()
	for _, u := range users {
		if !seen[u] {
			t.Errorf("no archive event for user %s", u)
		}
	}
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	before := sup.ActorCount()
	sup.Ensure(uuid.New())
	if sup.ActorCount() != before {
		t.Error("Ensure must not start actors after Run returned")
	}
}

func TestWatchStartsScannerOnReminderWrite(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := database.NewMemoryStore()

	got := make(chan ArchivedEvent, 1)
	sup := NewScanSupervisor(store, time.Hour, func(_ context.Context, ev ArchivedEvent) { got <- ev }, nil)
	go func() { _ = sup.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		sup.mu.Lock()
		started := sup.runCtx != nil
		sup.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("supervisor did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	user := uuid.New()
	past := time.Now().Add(-time.Minute)
	r := &models.Reminder{UserID: user, Title: "llamar al médico", ReminderTime: &past}
	if err := sup.Watch(store).CreateReminder(ctx, r); err != nil {
		t.Fatalf("CreateReminder() error = %v", err)
	}

	select {
	case ev := <-got:
		if ev.UserID != user || len(ev.ReminderIDs) != 1 || ev.ReminderIDs[0] != r.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watched write did not start a scanner")
	}
}

func TestEnsureAfterShutdownStartsNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	sup := NewScanSupervisor(database.NewMemoryStore(), time.Hour, nil, nil)
	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	// Ensure races with shutdown; none of its scanners may outlive Run.
	stopEnsure := make(chan struct{})
	var ensuring sync.WaitGroup
	ensuring.Add(1)
	go func() {
		defer ensuring.Done()
		for {
			select {
			case <-stopEnsure:
				return
			default:
				sup.Ensure(uuid.New())
				time.Sleep(time.Millisecond)
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sup.Ensure(uuid.New())
	close(stopEnsure)
	ensuring.Wait()

	sup.mu.Lock()
	stopping := sup.stopping
	sup.mu.Unlock()
	if !stopping {
		t.Error("supervisor should refuse new scanners after Run returns")
	}
	if n := sup.ActorCount(); n != 0 {
		t.Errorf("ActorCount() = %d after shutdown, want 0", n)
	}
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*queue.Event
	err    error
}

var _ queue.EventPublisher = (*mockPublisher)(nil)

func (m *mockPublisher) Publish(_ context.Context, event *queue.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) HealthCheck(context.Context) error { return nil }

func TestPublishArchived(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "published"},
		{name: "publish failure is swallowed", err: errors.New("broker down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pub := &mockPublisher{err: tt.err}
			moved := time.Now()
			ev := ArchivedEvent{UserID: uuid.New(), ReminderIDs: []uuid.UUID{uuid.New()}, MovedAt: moved}
			PublishArchived(pub, zap.NewNop())(context.Background(), ev)

			if len(pub.events) != 1 {
				t.Fatalf("published %d events, want 1", len(pub.events))
			}
			got := pub.events[0]
			if got.Type != queue.EventTypeReminderArchived || got.UserID != ev.UserID || !got.MovedAt.Equal(moved) {
				t.Errorf("event = %+v", got)
			}
		})
	}
}
