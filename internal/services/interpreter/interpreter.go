// Package interpreter turns a transcribed utterance into a validated intent
// using a language service.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/backoff"
	"github.com/benvon/voice-todo/internal/intent"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/models"
	"github.com/benvon/voice-todo/internal/services/ai"
)

// ErrInterpretationUnavailable is returned when the language service could not
// be reached, after retries where retrying made sense.
var ErrInterpretationUnavailable = errors.New("interpretation unavailable")

var tracer = otel.Tracer("github.com/benvon/voice-todo/internal/services/interpreter")

// Interpreter maps utterances to intents. It is safe for concurrent use.
type Interpreter struct {
	generator ai.Generator
	grammar   *Grammar
	policy    backoff.Policy
	retryOpts []backoff.Option
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithPolicy sets the retry policy for language-service calls.
func WithPolicy(p backoff.Policy) Option {
	return func(i *Interpreter) { i.policy = p }
}

// WithRetryOptions passes extra options to every retry loop, for example a test timer.
func WithRetryOptions(opts ...backoff.Option) Option {
	return func(i *Interpreter) { i.retryOpts = append(i.retryOpts, opts...) }
}

// WithLocation sets the zone used for the prompt clock and zone-less times.
func WithLocation(loc *time.Location) Option {
	return func(i *Interpreter) {
		if loc != nil {
			i.location = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

// WithGrammar replaces the embedded grammar.
func WithGrammar(g *Grammar) Option {
	return func(i *Interpreter) { i.grammar = g }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Interpreter) { i.logger = l }
}

// New creates an Interpreter over generator.
func New(generator ai.Generator, opts ...Option) (*Interpreter, error) {
	if generator == nil {
		return nil, errors.New("interpreter requires a generator")
	}
	in := &Interpreter{
		generator: generator,
		policy:    backoff.DefaultPolicy(),
		location:  time.Local,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.grammar == nil {
		g, err := DefaultGrammar()
		if err != nil {
			return nil, err
		}
		in.grammar = g
	}
	return in, nil
}

// Grammar returns the instruction set in use.
func (in *Interpreter) Grammar() *Grammar {
	return in.grammar
}

// Interpret produces an intent for utt. Failures map as follows:
//   - language service unreachable: ErrInterpretationUnavailable (after retries)
//   - response not JSON: *MalformedResultError
//   - response JSON but not a valid command: intent.None with a nil error
func (in *Interpreter) Interpret(ctx context.Context, utt models.Utterance) (intent.Intent, error) {
	ctx, span := tracer.Start(ctx, "interpreter.Interpret")
	defer span.End()

	now := in.now().In(in.location)
	prompt := in.grammar.BuildPrompt(utt.Text, now)
	req := ai.Request{
		System:    in.grammar.System,
		Prompt:    prompt,
		Schema:    &in.grammar.Schema,
		Operation: "interpret_command",
	}

	notify := backoff.WithNotify(func(err error, attempt int, wait time.Duration) {
		in.logger.Warn("interpreter_retry",
			zap.String("provider", in.generator.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("error", logger.SanitizeError(err)),
		)
	})
	opts := append([]backoff.Option{notify}, in.retryOpts...)

	text, err := backoff.Execute(ctx, in.policy, func(ctx context.Context) (string, error) {
		out, err := in.generator.Generate(ctx, req)
		if err != nil && ai.IsPermanent(err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "language service unavailable")
		in.logger.Error("interpretation_unavailable",
			zap.String("session_id", utt.SessionID.String()),
			zap.String("provider", in.generator.Name()),
			zap.String("error", logger.SanitizeError(err)),
		)
		return nil, fmt.Errorf("%w: %w", ErrInterpretationUnavailable, err)
	}

	raw, err := Decode(text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed result")
		in.logger.Warn("interpretation_malformed",
			zap.String("session_id", utt.SessionID.String()),
			zap.String("response_preview", ai.SanitizeResponse(text, false)),
		)
		return nil, err
	}

	result, verr := intent.Validate(raw, now)
	if verr != nil {
		in.logger.Info("interpretation_not_understood",
			zap.String("session_id", utt.SessionID.String()),
			zap.String("utterance", logger.SanitizeUtterance(utt.Text)),
			zap.String("reason", verr.Error()),
		)
	}
	span.SetAttributes(attribute.String("intent.action", string(result.Action())))
	return result, nil
}
