package billpoll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Session is one independent run of the polling algorithm.
//
// A Session is created by [Poll] and runs on its own goroutine until a
// probe reports done, the deadline passes, or it is cancelled through its
// parent context or [Session.Stop]. Sessions share no state with each other.
//
// All methods are safe for concurrent use.
type Session struct {
	id           string
	cfg          *pollConfig
	initialDelay time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	startedAt    time.Time
	logger       *slog.Logger

	mu       sync.Mutex
	outcome  Outcome
	attempts int
	warned   bool
}

// Poll starts a poll session in the background and returns immediately.
//
// The session waits initialDelay, then calls probe until it returns a done
// [Result], growing the wait by the backoff factor after each unsuccessful
// attempt. Results are delivered through cb, never as a return value:
// exactly one of cb.OnSuccess or cb.OnStop fires, and cb.OnWarning fires at
// most once before it.
//
// Cancelling ctx, or calling [Session.Stop], ends the session with
// [OutcomeCancelled] and fires cb.OnStop. If ctx is nil,
// context.Background() is used.
//
// The returned error only reports invalid arguments or options; in that
// case no session is started and no callback fires.
//
// Example:
//
//	s, err := billpoll.Poll(ctx, time.Second, probe, billpoll.Callbacks[[]billing.Slot]{
//	    OnSuccess: func(slots []billing.Slot) { render(slots) },
//	    OnWarning: func() { showSlowNotice() },
//	    OnStop:    func() { hideSpinner() },
//	})
func Poll[T any](ctx context.Context, initialDelay time.Duration, probe Probe[T], cb Callbacks[T], opts ...Option) (*Session, error) {
	s, err := newSession(ctx, initialDelay, probe, opts)
	if err != nil {
		return nil, err
	}

	go runSession(s, probe, cb)
	return s, nil
}

// Run is the blocking form of [Poll]. It runs the session on the calling
// goroutine and returns its outcome once the terminal callback has fired.
func Run[T any](ctx context.Context, initialDelay time.Duration, probe Probe[T], cb Callbacks[T], opts ...Option) (Outcome, error) {
	s, err := newSession(ctx, initialDelay, probe, opts)
	if err != nil {
		return OutcomePending, err
	}

	runSession(s, probe, cb)
	return s.Outcome(), nil
}

func newSession[T any](ctx context.Context, initialDelay time.Duration, probe Probe[T], opts []Option) (*Session, error) {
	if probe == nil {
		return nil, errors.New("probe cannot be nil")
	}
	if initialDelay < 0 {
		return nil, fmt.Errorf("initial delay cannot be negative, got %s", initialDelay)
	}

	cfg, err := newPollConfig(opts)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	sessionCtx, cancel := context.WithCancel(ctx)

	id := uuid.NewString()
	return &Session{
		id:           id,
		cfg:          cfg,
		initialDelay: initialDelay,
		ctx:          sessionCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
		startedAt:    cfg.clock.Now(),
		logger:       cfg.logger.With("session_id", id, "session", cfg.name),
		outcome:      OutcomePending,
	}, nil
}

// ID returns the unique session ID.
func (s *Session) ID() string {
	return s.id
}

// Name returns the name set with [WithName], or the empty string.
func (s *Session) Name() string {
	return s.cfg.name
}

// StartedAt returns the clock time the session started.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Done returns a channel that is closed after the terminal callback ran.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finished and returns its outcome.
func (s *Session) Wait() Outcome {
	<-s.done
	return s.Outcome()
}

// Stop cancels the session and waits for it to finish.
//
// If the session is still running, OnStop fires with [OutcomeCancelled].
// A probe that is in flight is allowed to return first. Stop is idempotent
// and safe to call after the session finished.
//
// Stop must not be called from the session's own callbacks or probe, since
// it waits for that goroutine; cancel the parent context there instead.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

// Outcome returns the current state of the session.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Attempts returns the number of probe calls made so far.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Warned reports whether the warning callback has fired.
func (s *Session) Warned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warned
}

// runSession drives one session to completion on the calling goroutine.
//
// TIMING SEMANTIC: the deadline and warning are checked after each attempt
// against the time since session start. A probe that is running when the
// deadline passes is not interrupted.
func runSession[T any](s *Session, probe Probe[T], cb Callbacks[T]) {
	defer close(s.done)
	defer s.cancel()

	cfg := s.cfg
	schedule := newSchedule(s.initialDelay, cfg)

	s.logger.Debug("poll session started",
		"initial_delay", s.initialDelay.String(),
		"backoff_factor", cfg.backoffFactor,
		"retry_until", cfg.retryUntil.String(),
	)

	delay := s.initialDelay
	for {
		if err := cfg.clock.Sleep(s.ctx, delay); err != nil {
			s.stop(OutcomeCancelled, s.Attempts(), cb.OnStop)
			return
		}

		attempt := s.recordAttempt()
		result, err := safeProbe(s.ctx, probe, s.logger)
		elapsed := s.elapsed()

		if err == nil && result.done {
			s.setOutcome(OutcomeSucceeded)
			s.logger.Info("poll session succeeded",
				"attempt", attempt,
				"elapsed_ms", elapsed.Milliseconds(),
			)
			s.emit(Event{Kind: EventSuccess, Attempt: attempt, Elapsed: elapsed, Outcome: OutcomeSucceeded})
			if cb.OnSuccess != nil {
				value := result.value
				s.invokeCallbackSafe("success", func() { cb.OnSuccess(value) })
			}
			return
		}

		if err != nil {
			s.logger.Warn("probe failed", "attempt", attempt, "error", err.Error())
		}

		cancelled := s.ctx.Err() != nil
		timedOut := elapsed > cfg.retryUntil

		var next time.Duration
		if !cancelled && !timedOut {
			next = schedule.NextBackOff()
		}

		if err != nil {
			s.emit(Event{Kind: EventProbeError, Attempt: attempt, Elapsed: elapsed, Delay: next, Outcome: OutcomePending, Err: err})
		} else {
			s.logger.Debug("probe not done", "attempt", attempt, "next_delay", next.String())
			s.emit(Event{Kind: EventAttempt, Attempt: attempt, Elapsed: elapsed, Delay: next, Outcome: OutcomePending})
		}

		if cancelled {
			s.stop(OutcomeCancelled, attempt, cb.OnStop)
			return
		}
		if timedOut {
			s.stop(OutcomeTimedOut, attempt, cb.OnStop)
			return
		}

		if cfg.warningAfter > 0 && elapsed > cfg.warningAfter && s.markWarned() {
			s.logger.Warn("poll session taking longer than expected",
				"attempt", attempt,
				"elapsed_ms", elapsed.Milliseconds(),
			)
			s.emit(Event{Kind: EventWarning, Attempt: attempt, Elapsed: elapsed, Delay: next, Outcome: OutcomePending})
			if cb.OnWarning != nil {
				s.invokeCallbackSafe("warning", cb.OnWarning)
			}
		}

		delay = next
	}
}

// newSchedule builds the delay sequence that follows the initial delay.
//
// The first retry waits initialDelay*factor and every later retry grows by
// the factor again, capped at max(maxDelay, initialDelay). Jitter is
// disabled so the sequence is non-decreasing.
func newSchedule(initialDelay time.Duration, cfg *pollConfig) *backoff.ExponentialBackOff {
	base := initialDelay
	if base < minRetryDelay {
		base = minRetryDelay
	}

	ceiling := cfg.maxDelay
	if ceiling < initialDelay {
		ceiling = initialDelay
	}

	// clamp before converting so a large factor cannot overflow
	first := ceiling
	if f := float64(base) * cfg.backoffFactor; f < float64(ceiling) {
		first = time.Duration(f)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     first,
		RandomizationFactor: 0,
		Multiplier:          cfg.backoffFactor,
		MaxInterval:         ceiling,
		MaxElapsedTime:      0, // the session enforces its own deadline
		Stop:                backoff.Stop,
		Clock:               cfg.clock,
	}
	b.Reset()
	return b
}

func (s *Session) elapsed() time.Duration {
	return s.cfg.clock.Now().Sub(s.startedAt)
}

func (s *Session) recordAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

// markWarned sets the warned flag and reports whether this call set it.
func (s *Session) markWarned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warned {
		return false
	}
	s.warned = true
	return true
}

func (s *Session) setOutcome(o Outcome) {
	s.mu.Lock()
	s.outcome = o
	s.mu.Unlock()
}

// stop finishes the session without success and fires onStop.
func (s *Session) stop(o Outcome, attempt int, onStop func()) {
	s.setOutcome(o)
	elapsed := s.elapsed()

	if o == OutcomeTimedOut {
		s.logger.Warn("poll session timed out",
			"attempt", attempt,
			"elapsed_ms", elapsed.Milliseconds(),
			"retry_until", s.cfg.retryUntil.String(),
		)
	} else {
		s.logger.Info("poll session cancelled", "attempt", attempt)
	}

	s.emit(Event{Kind: EventStop, Attempt: attempt, Elapsed: elapsed, Outcome: o})
	if onStop != nil {
		s.invokeCallbackSafe("stop", onStop)
	}
}

func (s *Session) emit(ev Event) {
	if len(s.cfg.observers) == 0 {
		return
	}

	ev.SessionID = s.id
	ev.Name = s.cfg.name
	ev.At = s.cfg.clock.Now()
	for _, obs := range s.cfg.observers {
		s.invokeCallbackSafe("observer", func() { obs(ev) })
	}
}

// safeProbe calls the probe with panic recovery.
// If the probe panics, it logs the full stack trace with a correlation ID
// and returns a pending result with an error containing the ID.
func safeProbe[T any](ctx context.Context, probe Probe[T], logger *slog.Logger) (result Result[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			logger.Error("probe panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			result = Result[T]{}
			err = fmt.Errorf("probe panic (correlation_id: %s)", correlationID)
		}
	}()
	return probe(ctx)
}

// invokeCallbackSafe calls a caller-supplied function with panic recovery.
// Panics are logged but do not propagate.
func (s *Session) invokeCallbackSafe(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll callback panicked",
				"callback", kind,
				"panic", r,
			)
		}
	}()
	fn()
}
