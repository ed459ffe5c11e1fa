package assistant

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/intent"
	"github.com/benvon/voice-todo/internal/speech"
)

// VoiceLoop drives one user's spoken conversation: greet, then listen,
// interpret, dispatch and speak until input ends or ctx is cancelled.
type VoiceLoop struct {
	assistant *Assistant
	session   *speech.Session
	userID    uuid.UUID
	logger    *zap.Logger
	// OnRoute, when set, receives the route of each successful command.
	OnRoute func(intent.Route)
}

// NewVoiceLoop binds a speech session to a user
func NewVoiceLoop(a *Assistant, session *speech.Session, userID uuid.UUID, log *zap.Logger) *VoiceLoop {
	if log == nil {
		log = zap.NewNop()
	}
	return &VoiceLoop{assistant: a, session: session, userID: userID, logger: log}
}

// Run greets once and processes utterances sequentially, so confirmations
// are spoken in the order their dispatches complete.
func (v *VoiceLoop) Run(ctx context.Context) error {
	v.logger.Info("voice_session_started",
		zap.String("session_id", v.session.ID().String()),
		zap.String("locale", v.session.Locale()))
	if err := v.session.Speak(ctx, Greeting); err != nil {
		return err
	}

	for {
		utt, err := v.session.Listen(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			return nil
		case errors.Is(err, speech.ErrNoSpeech), errors.Is(err, speech.ErrCaptureStopped):
			continue
		default:
			return err
		}

		resp := v.assistant.InterpretAndDispatch(ctx, v.userID, utt)
		if err := v.session.Speak(ctx, resp.ConfirmationText); err != nil {
			v.logger.Warn("voice_speak_failed",
				zap.String("session_id", v.session.ID().String()),
				zap.Error(err))
		}
		if resp.Route != "" && v.OnRoute != nil {
			v.OnRoute(resp.Route)
		}
	}
}
