package dispatcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/intent"
	"github.com/benvon/voice-todo/internal/models"
)

type mockStore struct {
	createTaskFunc      func(ctx context.Context, task *models.Task) error
	createChecklistFunc func(ctx context.Context, list *models.Checklist) error
	createReminderFunc  func(ctx context.Context, r *models.Reminder) error
	writes              int
}

var _ Store = (*mockStore)(nil)

func (m *mockStore) CreateTask(ctx context.Context, task *models.Task) error {
	m.writes++
	if m.createTaskFunc != nil {
		return m.createTaskFunc(ctx, task)
	}
	return nil
}

func (m *mockStore) CreateChecklist(ctx context.Context, list *models.Checklist) error {
	m.writes++
	if m.createChecklistFunc != nil {
		return m.createChecklistFunc(ctx, list)
	}
	return nil
}

func (m *mockStore) CreateReminder(ctx context.Context, r *models.Reminder) error {
	m.writes++
	if m.createReminderFunc != nil {
		return m.createReminderFunc(ctx, r)
	}
	return nil
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 12, 9, 0, 0, 0, time.UTC)
	fire := time.Date(2025, 8, 12, 15, 30, 0, 0, time.UTC)
	tomorrow := time.Date(2025, 8, 13, 8, 0, 0, 0, time.UTC)
	later := time.Date(2025, 9, 2, 18, 45, 0, 0, time.UTC)
	nextYear := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		in         intent.Intent
		wantText   string
		wantRoute  intent.Route
		wantKind   Kind
		wantWrites int
	}{
		{
			name:       "task",
			in:         intent.Create{Type: intent.ItemTask, Title: "comprar leche"},
			wantText:   `Tarea "comprar leche" creada.`,
			wantRoute:  intent.RouteTasks,
			wantKind:   KindTask,
			wantWrites: 1,
		},
		{
			name:       "list",
			in:         intent.Create{Type: intent.ItemList, Title: "lista de compras", Sections: []string{"pan", "leche", "huevos"}},
			wantText:   `Lista "lista de compras" creada con 3 elementos.`,
			wantRoute:  intent.RouteLists,
			wantKind:   KindList,
			wantWrites: 1,
		},
		{
			name:       "reminder with time",
			in:         intent.Create{Type: intent.ItemReminder, Title: "llamar a mamá", FireAt: &fire},
			wantText:   `Recordatorio "llamar a mamá" creado para hoy a las 3:30 pm.`,
			wantRoute:  intent.RouteReminders,
			wantKind:   KindReminder,
			wantWrites: 1,
		},
		{
			name:       "reminder tomorrow",
			in:         intent.Create{Type: intent.ItemReminder, Title: "dentista", FireAt: &tomorrow},
			wantText:   `Recordatorio "dentista" creado para mañana a las 8:00 am.`,
			wantRoute:  intent.RouteReminders,
			wantKind:   KindReminder,
			wantWrites: 1,
		},
		{
			name:       "reminder on a later date",
			in:         intent.Create{Type: intent.ItemReminder, Title: "pagar renta", FireAt: &later},
			wantText:   `Recordatorio "pagar renta" creado para el 2 de septiembre a las 6:45 pm.`,
			wantRoute:  intent.RouteReminders,
			wantKind:   KindReminder,
			wantWrites: 1,
		},
		{
			name:       "reminder next year",
			in:         intent.Create{Type: intent.ItemReminder, Title: "renovar pasaporte", FireAt: &nextYear},
			wantText:   `Recordatorio "renovar pasaporte" creado para el 5 de enero de 2026 a las 10:00 am.`,
			wantRoute:  intent.RouteReminders,
			wantKind:   KindReminder,
			wantWrites: 1,
		},
		{
			name:       "reminder without time",
			in:         intent.Create{Type: intent.ItemReminder, Title: "regar plantas"},
			wantText:   `Recordatorio "regar plantas" creado sin hora definida.`,
			wantRoute:  intent.RouteReminders,
			wantKind:   KindReminder,
			wantWrites: 1,
		},
		{
			name:      "navigate history",
			in:        intent.Navigate{Route: intent.RouteHistory},
			wantText:  "Navegando a historial.",
			wantRoute: intent.RouteHistory,
			wantKind:  KindNavigation,
		},
		{
			name:      "navigate root",
			in:        intent.Navigate{Route: intent.RouteLists},
			wantText:  "Navegando a listas.",
			wantRoute: intent.RouteLists,
			wantKind:  KindNavigation,
		},
		{
			name:     "none",
			in:       intent.None{Reason: "no entendido"},
			wantText: MessageNotUnderstood,
			wantKind: KindNotUnderstood,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &mockStore{}
			d := New(store, nil, time.UTC)
			d.now = func() time.Time { return now }
			out, err := d.Dispatch(context.Background(), uuid.New(), tt.in)
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if out.Confirmation != tt.wantText {
				t.Errorf("Confirmation = %q, want %q", out.Confirmation, tt.wantText)
			}
			if out.Route != tt.wantRoute {
				t.Errorf("Route = %q, want %q", out.Route, tt.wantRoute)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", out.Kind, tt.wantKind)
			}
			if store.writes != tt.wantWrites {
				t.Errorf("writes = %d, want %d", store.writes, tt.wantWrites)
			}
			if (out.RecordID != nil) != (tt.wantWrites > 0) {
				t.Errorf("RecordID = %v, want set only after a write", out.RecordID)
			}
		})
	}
}

func TestDispatchPersistsRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemoryStore()
	d := New(store, nil, time.UTC)
	user := uuid.New()

	out, err := d.Dispatch(ctx, user, intent.Create{Type: intent.ItemTask, Title: "comprar leche"})
	if err != nil {
		t.Fatalf("Dispatch(task) error = %v", err)
	}
	task, err := store.GetTask(ctx, user, *out.RecordID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Title != "comprar leche" || task.Completed {
		t.Errorf("stored task = %+v", task)
	}

	out, err = d.Dispatch(ctx, user, intent.Create{Type: intent.ItemList, Title: "lista de compras", Sections: []string{"pan", "leche", "huevos"}})
	if err != nil {
		t.Fatalf("Dispatch(list) error = %v", err)
	}
	list, err := store.GetChecklist(ctx, user, *out.RecordID)
	if err != nil {
		t.Fatalf("GetChecklist() error = %v", err)
	}
	if len(list.Sections) != 3 || list.CompletedCount() != 0 {
		t.Errorf("stored list sections = %+v, want 3 incomplete", list.Sections)
	}

	fire := time.Now().Add(time.Hour)
	out, err = d.Dispatch(ctx, user, intent.Create{Type: intent.ItemReminder, Title: "cita", FireAt: &fire})
	if err != nil {
		t.Fatalf("Dispatch(reminder) error = %v", err)
	}
	r, err := store.GetReminder(ctx, user, *out.RecordID)
	if err != nil {
		t.Fatalf("GetReminder() error = %v", err)
	}
	if r.ReminderTime == nil || !r.ReminderTime.Equal(fire) || r.Completed {
		t.Errorf("stored reminder = %+v", r)
	}
}

func TestReminderDayUsesLocation(t *testing.T) {
	t.Parallel()

	madrid := time.FixedZone("CEST", 2*60*60)
	d := New(&mockStore{}, nil, madrid)
	d.now = func() time.Time { return time.Date(2025, 8, 12, 9, 0, 0, 0, time.UTC) }

	// 23:30 UTC is already the next day in Madrid
	fire := time.Date(2025, 8, 12, 23, 30, 0, 0, time.UTC)
	out, err := d.Dispatch(context.Background(), uuid.New(), intent.Create{Type: intent.ItemReminder, Title: "sacar la basura", FireAt: &fire})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	want := `Recordatorio "sacar la basura" creado para mañana a las 1:30 am.`
	if out.Confirmation != want {
		t.Errorf("Confirmation = %q, want %q", out.Confirmation, want)
	}
}

func TestDispatchStoreFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("unavailable")
	store := &mockStore{
		createTaskFunc: func(context.Context, *models.Task) error { return boom },
	}
	d := New(store, nil, nil)

	out, err := d.Dispatch(context.Background(), uuid.New(), intent.Create{Type: intent.ItemTask, Title: "x"})
	if out != nil {
		t.Errorf("Dispatch() outcome = %+v, want nil", out)
	}
	var pe *database.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Dispatch() error = %v, want PersistenceError", err)
	}
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), database.CollectionTasks) {
		t.Errorf("error should wrap the store failure and name the collection: %v", err)
	}
	if store.writes != 1 {
		t.Errorf("writes = %d, want exactly one attempt", store.writes)
	}
}
