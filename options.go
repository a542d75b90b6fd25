package billpoll

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/jpalmerr/billpoll/internal/clock"
)

const (
	defaultBackoffFactor = 1.2
	defaultWarningAfter  = 40 * time.Second
	defaultRetryUntil    = 120 * time.Second
	defaultMaxDelay      = time.Minute

	// minRetryDelay is the base for backoff when the initial delay is zero,
	// so that a zero initial delay never turns into a busy loop.
	minRetryDelay = 100 * time.Millisecond
)

// Clock is the time source of a poll session.
//
// Now is used for elapsed-time checks and Sleep for the waits between
// attempts. Sleep must return the context error when ctx ends the wait.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// pollConfig holds the immutable configuration of one poll session.
type pollConfig struct {
	name          string
	backoffFactor float64
	warningAfter  time.Duration
	retryUntil    time.Duration
	maxDelay      time.Duration
	logger        *slog.Logger
	clock         Clock
	observers     []func(Event)
}

// Option is a function that configures a poll session.
//
// Option implements the functional options pattern. Options return an
// error if validation fails, in which case [Poll] and [Run] return that
// error without starting the session.
//
// Built-in options: [WithName], [WithBackoffFactor], [WithWarningAfter],
// [WithRetryUntil], [WithMaxDelay], [WithLogger], [WithClock],
// [WithObserver].
type Option func(*pollConfig) error

// WithName sets a human-readable session name used in logs and events.
func WithName(name string) Option {
	return func(cfg *pollConfig) error {
		cfg.name = name
		return nil
	}
}

// WithBackoffFactor sets the multiplier applied to the delay after each
// unsuccessful attempt. Defaults to 1.2.
//
// Returns an error unless the factor is a finite number greater than 1.
func WithBackoffFactor(f float64) Option {
	return func(cfg *pollConfig) error {
		if !(f > 1) {
			return errors.New("backoff factor must be greater than 1")
		}
		if math.IsInf(f, 1) {
			return errors.New("backoff factor must be finite")
		}
		cfg.backoffFactor = f
		return nil
	}
}

// WithWarningAfter sets how long a session may run before the OnWarning
// callback fires. Defaults to 40 seconds. Zero disables the warning.
//
// Returns an error if the duration is negative.
func WithWarningAfter(d time.Duration) Option {
	return func(cfg *pollConfig) error {
		if d < 0 {
			return errors.New("warning threshold cannot be negative")
		}
		cfg.warningAfter = d
		return nil
	}
}

// WithRetryUntil sets the overall deadline, measured from session start.
// Once an attempt finishes past the deadline without completing, the
// session stops and OnStop fires. Defaults to 120 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRetryUntil(d time.Duration) Option {
	return func(cfg *pollConfig) error {
		if d <= 0 {
			return errors.New("retry deadline must be positive")
		}
		cfg.retryUntil = d
		return nil
	}
}

// WithMaxDelay caps the wait between attempts. Defaults to 1 minute.
//
// The cap never lowers the delay below the initial delay, so delays stay
// non-decreasing across attempts.
//
// Returns an error if the duration is zero or negative.
func WithMaxDelay(d time.Duration) Option {
	return func(cfg *pollConfig) error {
		if d <= 0 {
			return errors.New("max delay must be positive")
		}
		cfg.maxDelay = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the session.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pollConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock replaces the wall clock, mainly for tests.
//
// Returns an error if the clock is nil.
func WithClock(c Clock) Option {
	return func(cfg *pollConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithObserver registers a function that receives every [Event] of the
// session. Observers run on the session goroutine and must not block.
// Panics are recovered and logged.
//
// Nil observers are silently ignored.
func WithObserver(fn func(Event)) Option {
	return func(cfg *pollConfig) error {
		if fn == nil {
			return nil
		}
		cfg.observers = append(cfg.observers, fn)
		return nil
	}
}

// newPollConfig applies opts over the defaults.
func newPollConfig(opts []Option) (*pollConfig, error) {
	cfg := &pollConfig{
		backoffFactor: defaultBackoffFactor,
		warningAfter:  defaultWarningAfter,
		retryUntil:    defaultRetryUntil,
		maxDelay:      defaultMaxDelay,
		clock:         clock.New(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return cfg, nil
}
