// Package dispatcher turns validated intents into store writes and the
// Spanish confirmation spoken back to the user.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/intent"
	"github.com/benvon/voice-todo/internal/models"
)

// Fixed user-facing messages.
const (
	MessageNotUnderstood = "No pude entender tu comando. Intenta ser más específico."
	MessageError         = "Hubo un error al procesar tu comando. Inténtalo de nuevo."
)

// reminderClock is how a reminder's firing time is spoken.
const reminderClock = "3:04 pm"

var months = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var tracer = otel.Tracer("github.com/benvon/voice-todo/internal/services/dispatcher")

// Kind says what a dispatch did.
type Kind string

const (
	KindTask          Kind = "task"
	KindList          Kind = "list"
	KindReminder      Kind = "reminder"
	KindNavigation    Kind = "navigation"
	KindNotUnderstood Kind = "not_understood"
)

// Outcome is the result of one dispatch.
type Outcome struct {
	Confirmation string
	// Route is empty when the UI should stay where it is.
	Route intent.Route
	// RecordID is set when a record was created.
	RecordID *uuid.UUID
	Kind     Kind
}

// Store is the persistence the dispatcher writes to.
type Store interface {
	CreateTask(ctx context.Context, task *models.Task) error
	CreateChecklist(ctx context.Context, list *models.Checklist) error
	CreateReminder(ctx context.Context, r *models.Reminder) error
}

// Dispatcher executes intents
type Dispatcher struct {
	store    Store
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// New creates a dispatcher. loc is used to speak reminder times; nil means time.Local.
func New(store Store, logger *zap.Logger, loc *time.Location) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{store: store, logger: logger, location: loc, now: time.Now}
}

// Dispatch performs the single write an intent asks for. Store failures are
// returned as *database.PersistenceError and never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, userID uuid.UUID, in intent.Intent) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "dispatcher.Dispatch")
	defer span.End()

	var (
		out *Outcome
		err error
	)
	switch v := in.(type) {
	case intent.Create:
		out, err = d.create(ctx, userID, v)
	case intent.Navigate:
		out = &Outcome{
			Confirmation: fmt.Sprintf("Navegando a %s.", v.Route.Name()),
			Route:        v.Route,
			Kind:         KindNavigation,
		}
	default:
		out = &Outcome{Confirmation: MessageNotUnderstood, Kind: KindNotUnderstood}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		d.logger.Error("command_dispatch_failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("dispatch.kind", string(out.Kind)))
	fields := []zap.Field{
		zap.String("user_id", userID.String()),
		zap.String("kind", string(out.Kind)),
		zap.String("route", string(out.Route)),
	}
	if out.RecordID != nil {
		fields = append(fields, zap.String("record_id", out.RecordID.String()))
	}
	d.logger.Info("command_dispatched", fields...)
	return out, nil
}

func (d *Dispatcher) create(ctx context.Context, userID uuid.UUID, c intent.Create) (*Outcome, error) {
	switch c.Type {
	case intent.ItemTask:
		task := &models.Task{UserID: userID, Title: c.Title, DueDate: c.DueAt}
		if err := d.store.CreateTask(ctx, task); err != nil {
			return nil, database.Wrap("create", database.CollectionTasks, err)
		}
		return &Outcome{
			Confirmation: fmt.Sprintf("Tarea \"%s\" creada.", c.Title),
			Route:        intent.RouteTasks,
			RecordID:     &task.ID,
			Kind:         KindTask,
		}, nil

	case intent.ItemList:
		list := &models.Checklist{UserID: userID, Title: c.Title, Sections: models.NewSections(c.Sections)}
		if err := d.store.CreateChecklist(ctx, list); err != nil {
			return nil, database.Wrap("create", database.CollectionLists, err)
		}
		return &Outcome{
			Confirmation: fmt.Sprintf("Lista \"%s\" creada con %d elementos.", c.Title, len(list.Sections)),
			Route:        intent.RouteLists,
			RecordID:     &list.ID,
			Kind:         KindList,
		}, nil

	case intent.ItemReminder:
		r := &models.Reminder{UserID: userID, Title: c.Title, ReminderTime: c.FireAt}
		if err := d.store.CreateReminder(ctx, r); err != nil {
			return nil, database.Wrap("create", database.CollectionReminders, err)
		}
		return &Outcome{
			Confirmation: d.reminderConfirmation(c),
			Route:        intent.RouteReminders,
			RecordID:     &r.ID,
			Kind:         KindReminder,
		}, nil
	}
	// Validate never produces another type.
	return &Outcome{Confirmation: MessageNotUnderstood, Kind: KindNotUnderstood}, nil
}

func (d *Dispatcher) reminderConfirmation(c intent.Create) string {
	if c.FireAt == nil {
		return fmt.Sprintf("Recordatorio \"%s\" creado sin hora definida.", c.Title)
	}
	at := c.FireAt.In(d.location)
	return fmt.Sprintf("Recordatorio \"%s\" creado para %s a las %s.", c.Title, d.spokenDay(at), at.Format(reminderClock))
}

// spokenDay names at's calendar day relative to today in the dispatcher's zone.
func (d *Dispatcher) spokenDay(at time.Time) string {
	now := d.now().In(d.location)
	y, m, day := at.Date()
	ny, nm, nd := now.Date()
	ty, tm, td := now.AddDate(0, 0, 1).Date()
	switch {
	case y == ny && m == nm && day == nd:
		return "hoy"
	case y == ty && m == tm && day == td:
		return "mañana"
	case y == ny:
		return fmt.Sprintf("el %d de %s", day, months[m-1])
	}
	return fmt.Sprintf("el %d de %s de %d", day, months[m-1], y)
}
