// Package speech owns the voice capture session on top of a platform
// speech adapter.
package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/voice-todo/internal/models"
)

var (
	// ErrAlreadyListening is returned when a capture is started while one is active.
	ErrAlreadyListening = errors.New("speech capture already active")
	// ErrCaptureStopped means StopListening discarded the capture.
	ErrCaptureStopped = errors.New("speech capture stopped")
	// ErrNoSpeech means the capture ended without a final transcript.
	ErrNoSpeech = errors.New("no speech recognised")
)

// Transcript is recognised text. Only a Final transcript ends a capture.
type Transcript struct {
	Text  string
	Final bool
	At    time.Time
}

// Adapter is the platform speech I/O. StartListening is single-shot: the
// channel yields transcripts for one utterance and then closes.
type Adapter interface {
	StartListening(ctx context.Context) (<-chan Transcript, error)
	StopListening()
	Speak(ctx context.Context, text, locale string) error
}

// Session serializes captures on one adapter. At most one capture is active.
type Session struct {
	adapter Adapter
	locale  string
	id      uuid.UUID
	now     func() time.Time

	mu        sync.Mutex
	listening bool
	stopped   bool
	cancel    context.CancelFunc
}

// NewSession creates a session speaking in locale.
func NewSession(adapter Adapter, locale string) *Session {
	return &Session{adapter: adapter, locale: locale, id: uuid.New(), now: time.Now}
}

// ID identifies the session in utterances and logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Locale is the speaking locale.
func (s *Session) Locale() string { return s.locale }

// Listening reports whether a capture is active.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Listen captures one utterance. It returns ErrAlreadyListening when another
// capture is active and ErrCaptureStopped when Stop interrupted it.
func (s *Session) Listen(ctx context.Context) (models.Utterance, error) {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return models.Utterance{}, ErrAlreadyListening
	}
	ctx, cancel := context.WithCancel(ctx)
	s.listening = true
	s.stopped = false
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.listening = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	transcripts, err := s.adapter.StartListening(ctx)
	if err != nil {
		return models.Utterance{}, err
	}

	for {
		select {
		case <-ctx.Done():
			if s.wasStopped() {
				return models.Utterance{}, ErrCaptureStopped
			}
			return models.Utterance{}, ctx.Err()
		case tr, ok := <-transcripts:
			if s.wasStopped() {
				return models.Utterance{}, ErrCaptureStopped
			}
			if !ok {
				return models.Utterance{}, ErrNoSpeech
			}
			if !tr.Final {
				continue
			}
			text := strings.TrimSpace(tr.Text)
			if text == "" {
				return models.Utterance{}, ErrNoSpeech
			}
			at := tr.At
			if at.IsZero() {
				at = s.now()
			}
			return models.Utterance{Text: text, At: at, SessionID: s.id}, nil
		}
	}
}

func (s *Session) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop ends the active capture and discards whatever it heard.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	s.adapter.StopListening()
	cancel()
}

// Speak says text in the session locale.
func (s *Session) Speak(ctx context.Context, text string) error {
	return s.adapter.Speak(ctx, text, s.locale)
}
