// Package assistant is the outward face of the voice pipeline: utterance in,
// spoken confirmation and optional route out.
package assistant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/intent"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/services/dispatcher"
	"github.com/benvon/voice-todo/internal/services/interpreter"
)

// Greeting opens every voice session.
const Greeting = "Hola, ¿qué quieres hacer hoy?"

// MessageBusy answers a command sent while the previous one is still running.
const MessageBusy = "Todavía estoy procesando tu comando anterior."

// Error codes carried in Response.Error.
const (
	ErrorInFlight    = "command_in_flight"
	ErrorUnavailable = "interpretation_unavailable"
	ErrorMalformed   = "malformed_result"
	ErrorPersistence = "persistence_error"
	ErrorInternal    = "internal_error"
)

// Interpreter maps an utterance to an intent.
type Interpreter interface {
	Interpret(ctx context.Context, utt models.Utterance) (intent.Intent, error)
}

// Dispatcher executes an intent.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID uuid.UUID, in intent.Intent) (*dispatcher.Outcome, error)
}

// Response is what the UI shows and speaks after a command.
type Response struct {
	ConfirmationText string       `json:"confirmation_text"`
	Route            intent.Route `json:"route,omitempty"`
	Error            string       `json:"error,omitempty"`
	// Err is the underlying failure, kept out of the wire format.
	Err error `json:"-"`
}

// Assistant runs the interpret and dispatch round trip
type Assistant struct {
	interpreter Interpreter
	dispatcher  Dispatcher
	guard       InFlightGuard
	logger      *zap.Logger
}

// New creates an assistant. A nil guard uses a LocalInFlightGuard.
func New(in Interpreter, d Dispatcher, guard InFlightGuard, log *zap.Logger) *Assistant {
	if guard == nil {
		guard = NewLocalInFlightGuard()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assistant{interpreter: in, dispatcher: d, guard: guard, logger: log}
}

// InterpretAndDispatch handles one utterance end to end. It never returns an
// error: every failure becomes a fixed Spanish message plus an error code.
// Once admitted, the command runs to completion even if ctx is cancelled.
func (a *Assistant) InterpretAndDispatch(ctx context.Context, userID uuid.UUID, utt models.Utterance) Response {
	release, err := a.guard.Acquire(ctx, userID)
	if errors.Is(err, ErrCommandInFlight) {
		a.logger.Info("assistant_command_rejected",
			zap.String("user_id", userID.String()),
			zap.String("reason", "in_flight"))
		return Response{ConfirmationText: MessageBusy, Error: ErrorInFlight, Err: err}
	}
	if err != nil {
		a.logger.Error("assistant_guard_failed",
			zap.String("user_id", userID.String()),
			zap.String("error", logger.SanitizeError(err)))
		return Response{ConfirmationText: dispatcher.MessageError, Error: ErrorInternal, Err: err}
	}
	defer release()

	ctx = context.WithoutCancel(ctx)

	in, err := a.interpreter.Interpret(ctx, utt)
	if err != nil {
		return a.failure(userID, err)
	}

	out, err := a.dispatcher.Dispatch(ctx, userID, in)
	if err != nil {
		return a.failure(userID, err)
	}
	return Response{ConfirmationText: out.Confirmation, Route: out.Route}
}

func (a *Assistant) failure(userID uuid.UUID, err error) Response {
	code := ErrorInternal
	var malformed *interpreter.MalformedResultError
	var persistence *database.PersistenceError
	switch {
	case errors.Is(err, interpreter.ErrInterpretationUnavailable):
		code = ErrorUnavailable
	case errors.As(err, &malformed):
		code = ErrorMalformed
	case errors.As(err, &persistence):
		code = ErrorPersistence
	}
	a.logger.Warn("assistant_command_failed",
		zap.String("user_id", userID.String()),
		zap.String("code", code),
		zap.String("error", logger.SanitizeError(err)))
	return Response{ConfirmationText: dispatcher.MessageError, Error: code, Err: err}
}
