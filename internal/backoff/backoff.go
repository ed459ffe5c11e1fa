// Package backoff retries retry-safe operations with capped exponential delays.
//
// Only wrap operations that may safely run more than once, such as a
// read-only language-service call. Persistence writes are never retried here.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	cb "github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	multiplier          = 2.0
)

// Policy describes how many times and how patiently to retry.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries   int
	InitialDelay time.Duration
	// MaxDelay caps a single wait. Zero means DefaultMaxDelay.
	MaxDelay time.Duration
	// Jitter randomizes each wait by +/- the given fraction. Zero keeps the
	// sequence deterministic (1s, 2s, 4s with the defaults).
	Jitter float64
}

// DefaultPolicy returns three retries starting at one second, doubling each time.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// MaxWait is the longest total time Execute can spend waiting between
// attempts, with every wait at the top of its jitter range.
func (p Policy) MaxWait() time.Duration {
	b := p.backOff()
	var total time.Duration
	interval := b.InitialInterval
	for i := 0; i < p.MaxRetries; i++ {
		total += time.Duration(float64(interval) * (1 + p.Jitter))
		interval = time.Duration(float64(interval) * multiplier)
		if interval > b.MaxInterval {
			interval = b.MaxInterval
		}
	}
	return total
}

// RetriesExhaustedError is returned when every attempt failed.
type RetriesExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Cause
}

// Permanent marks err as not worth retrying. Execute returns it unwrapped
// without waiting.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return cb.Permanent(err)
}

// Timer is the wait primitive used between attempts. Tests replace it to
// avoid sleeping.
type Timer = cb.Timer

// NotifyFunc observes each failed attempt before the executor waits.
type NotifyFunc func(err error, attempt int, wait time.Duration)

type settings struct {
	timer  Timer
	notify NotifyFunc
}

// Option customizes a single Execute call.
type Option func(*settings)

// WithTimer overrides the timer used between attempts.
func WithTimer(t Timer) Option {
	return func(s *settings) { s.timer = t }
}

// WithNotify registers a callback invoked after each failed attempt that will be retried.
func WithNotify(fn NotifyFunc) Option {
	return func(s *settings) { s.notify = fn }
}

func (p Policy) backOff() *cb.ExponentialBackOff {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	b := &cb.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: p.Jitter,
		Multiplier:          multiplier,
		MaxInterval:         maxDelay,
		// attempts are bounded by MaxRetries, not by wall time
		MaxElapsedTime: 0,
		Stop:           cb.Stop,
		Clock:          cb.SystemClock,
	}
	b.Reset()
	return b
}

// Execute calls op until it succeeds, returns a permanent error, the context
// ends, or MaxRetries retries have failed. In the last case the final error is
// wrapped in a *RetriesExhaustedError.
func Execute[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), opts ...Option) (T, error) {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var b cb.BackOff = cb.WithMaxRetries(p.backOff(), uint64(retries))
	b = cb.WithContext(b, ctx)

	attempts := 0
	permanent := false
	operation := func() (T, error) {
		attempts++
		res, err := op(ctx)
		var perm *cb.PermanentError
		if err != nil && errors.As(err, &perm) {
			permanent = true
		}
		return res, err
	}

	notify := func(err error, wait time.Duration) {
		if s.notify != nil {
			s.notify(err, attempts, wait)
		}
	}

	res, err := cb.RetryNotifyWithTimerAndData(operation, b, notify, s.timer)
	if err == nil {
		return res, nil
	}
	if permanent {
		return res, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, &RetriesExhaustedError{Attempts: attempts, Cause: err}
}
