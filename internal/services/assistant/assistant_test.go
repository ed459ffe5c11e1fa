package assistant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/intent"
	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/services/dispatcher"
	"github.com/benvon/voice-todo/internal/services/interpreter"
	"github.com/benvon/voice-todo/internal/speech"
)

type mockInterpreter struct {
	interpretFunc func(ctx context.Context, utt models.Utterance) (intent.Intent, error)
}

var _ Interpreter = (*mockInterpreter)(nil)

func (m *mockInterpreter) Interpret(ctx context.Context, utt models.Utterance) (intent.Intent, error) {
	return m.interpretFunc(ctx, utt)
}

type mockDispatcher struct {
	dispatchFunc func(ctx context.Context, userID uuid.UUID, in intent.Intent) (*dispatcher.Outcome, error)
}

var _ Dispatcher = (*mockDispatcher)(nil)

func (m *mockDispatcher) Dispatch(ctx context.Context, userID uuid.UUID, in intent.Intent) (*dispatcher.Outcome, error) {
	return m.dispatchFunc(ctx, userID, in)
}

func returning(in intent.Intent, err error) *mockInterpreter {
	return &mockInterpreter{interpretFunc: func(context.Context, models.Utterance) (intent.Intent, error) {
		return in, err
	}}
}

func TestInterpretAndDispatch(t *testing.T) {
	t.Parallel()

	live := dispatcher.New(database.NewMemoryStore(), nil, time.UTC)
	failing := &mockDispatcher{dispatchFunc: func(context.Context, uuid.UUID, intent.Intent) (*dispatcher.Outcome, error) {
		return nil, &database.PersistenceError{Op: "create", Collection: database.CollectionTasks, Err: errors.New("down")}
	}}

	tests := []struct {
		name      string
		interp    Interpreter
		disp      Dispatcher
		wantText  string
		wantRoute intent.Route
		wantError string
	}{
		{
			name:      "task created",
			interp:    returning(intent.Create{Type: intent.ItemTask, Title: "comprar leche"}, nil),
			disp:      live,
			wantText:  `Tarea "comprar leche" creada.`,
			wantRoute: intent.RouteTasks,
		},
		{
			name:      "navigate",
			interp:    returning(intent.Navigate{Route: intent.RouteHistory}, nil),
			disp:      live,
			wantText:  "Navegando a historial.",
			wantRoute: intent.RouteHistory,
		},
		{
			name:     "not understood",
			interp:   returning(intent.None{Reason: "x"}, nil),
			disp:     live,
			wantText: dispatcher.MessageNotUnderstood,
		},
		{
			name:      "language service unavailable",
			interp:    returning(nil, fmt.Errorf("%w: %w", interpreter.ErrInterpretationUnavailable, errors.New("timeout"))),
			disp:      live,
			wantText:  dispatcher.MessageError,
			wantError: ErrorUnavailable,
		},
		{
			name:      "malformed result",
			interp:    returning(nil, &interpreter.MalformedResultError{Raw: "hola", Err: errors.New("bad json")}),
			disp:      live,
			wantText:  dispatcher.MessageError,
			wantError: ErrorMalformed,
		},
		{
			name:      "persistence failure",
			interp:    returning(intent.Create{Type: intent.ItemTask, Title: "x"}, nil),
			disp:      failing,
			wantText:  dispatcher.MessageError,
			wantError: ErrorPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := New(tt.interp, tt.disp, nil, nil)
			resp := a.InterpretAndDispatch(context.Background(), uuid.New(), models.Utterance{Text: "algo"})
			if resp.ConfirmationText != tt.wantText {
				t.Errorf("ConfirmationText = %q, want %q", resp.ConfirmationText, tt.wantText)
			}
			if resp.Route != tt.wantRoute {
				t.Errorf("Route = %q, want %q", resp.Route, tt.wantRoute)
			}
			if resp.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantError)
			}
			if (resp.Err != nil) != (tt.wantError != "") {
				t.Errorf("Err = %v, want set only on failure", resp.Err)
			}
		})
	}
}

func TestInterpretAndDispatchSingleFlight(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var enterOnce sync.Once
	interp := &mockInterpreter{interpretFunc: func(ctx context.Context, _ models.Utterance) (intent.Intent, error) {
		enterOnce.Do(func() { close(entered) })
		<-unblock
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return intent.Navigate{Route: intent.RouteTasks}, nil
	}}
	a := New(interp, dispatcher.New(database.NewMemoryStore(), nil, nil), nil, nil)
	user := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	var first Response
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = a.InterpretAndDispatch(ctx, user, models.Utterance{Text: "ir a tareas"})
	}()
	<-entered

	second := a.InterpretAndDispatch(context.Background(), user, models.Utterance{Text: "otra"})
	if second.Error != ErrorInFlight || !errors.Is(second.Err, ErrCommandInFlight) {
		t.Errorf("second command = %+v, want in-flight rejection", second)
	}

	other := New(returning(intent.None{}, nil), dispatcher.New(database.NewMemoryStore(), nil, nil), a.guard, nil)
	if resp := other.InterpretAndDispatch(context.Background(), uuid.New(), models.Utterance{}); resp.Error != "" {
		t.Errorf("another user must not be blocked, got %+v", resp)
	}

	// Cancelling the caller must not abort the admitted command.
	cancel()
	close(unblock)
	wg.Wait()
	if first.Route != intent.RouteTasks || first.Error != "" {
		t.Errorf("first command = %+v, want completed navigation", first)
	}

	third := a.InterpretAndDispatch(context.Background(), user, models.Utterance{Text: "ir a tareas"})
	if third.Error != "" || third.Route != intent.RouteTasks {
		t.Errorf("third command = %+v, want the slot released after the first finished", third)
	}
}

func TestLocalInFlightGuardReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	g := NewLocalInFlightGuard()
	user := uuid.New()
	release, err := g.Acquire(context.Background(), user)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()
	again, err := g.Acquire(context.Background(), user)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release()
	if _, err := g.Acquire(context.Background(), user); !errors.Is(err, ErrCommandInFlight) {
		t.Errorf("stale release must not free a newer holder, err = %v", err)
	}
	again()
}

func TestRedisInFlightGuard(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	g := NewRedisInFlightGuard(client, 5*time.Second)
	user := uuid.New()
	release, err := g.Acquire(context.Background(), user)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := g.Acquire(context.Background(), user); !errors.Is(err, ErrCommandInFlight) {
		t.Errorf("second Acquire() error = %v, want ErrCommandInFlight", err)
	}
	release()
	release2, err := g.Acquire(context.Background(), user)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}

func TestVoiceLoop(t *testing.T) {
	t.Parallel()

	store := database.NewMemoryStore()
	user := uuid.New()
	interp := &mockInterpreter{interpretFunc: func(_ context.Context, utt models.Utterance) (intent.Intent, error) {
		switch utt.Text {
		case "crea una tarea llamada comprar leche":
			return intent.Create{Type: intent.ItemTask, Title: "comprar leche"}, nil
		case "ir a historial":
			return intent.Navigate{Route: intent.RouteHistory}, nil
		}
		return intent.None{}, nil
	}}
	a := New(interp, dispatcher.New(store, nil, time.UTC), nil, nil)

	var out strings.Builder
	console := speech.NewConsoleAdapter(strings.NewReader("crea una tarea llamada comprar leche\n\nir a historial\nbla\n"), &out)
	core, logs := observer.New(zap.InfoLevel)
	session := speech.NewSession(console, "es-ES")
	loop := NewVoiceLoop(a, session, user, zap.New(core))
	var routes []intent.Route
	loop.OnRoute = func(r intent.Route) { routes = append(routes, r) }

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	spoken := out.String()
	wantOrder := []string{
		Greeting,
		`Tarea "comprar leche" creada.`,
		"Navegando a historial.",
		dispatcher.MessageNotUnderstood,
	}
	pos := 0
	for _, want := range wantOrder {
		i := strings.Index(spoken[pos:], want)
		if i < 0 {
			t.Fatalf("output missing %q after position %d:\n%s", want, pos, spoken)
		}
		pos += i + len(want)
	}
	if strings.Count(spoken, Greeting) != 1 {
		t.Errorf("greeting should be spoken once:\n%s", spoken)
	}
	if len(routes) != 2 || routes[0] != intent.RouteTasks || routes[1] != intent.RouteHistory {
		t.Errorf("routes = %v", routes)
	}

	tasks, _ := store.ListTasks(context.Background(), user, database.TaskFilter{})
	if len(tasks) != 1 {
		t.Errorf("stored %d tasks, want 1", len(tasks))
	}

	started := logs.FilterMessage("voice_session_started").All()
	if len(started) != 1 {
		t.Fatalf("voice_session_started entries = %d, want 1", len(started))
	}
	fields := started[0].ContextMap()
	if fields["locale"] != "es-ES" || fields["session_id"] != session.ID().String() {
		t.Errorf("voice_session_started fields = %v", fields)
	}
}
