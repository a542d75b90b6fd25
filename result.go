package billpoll

import "context"

// Result is the tagged value a [Probe] returns: either "not yet done" or
// "done" with a payload of type T.
//
// Build one with [Done] or [Pending]. The zero value is pending.
type Result[T any] struct {
	done  bool
	value T
}

// Done returns a completed result carrying v.
func Done[T any](v T) Result[T] {
	return Result[T]{done: true, value: v}
}

// Pending returns a result meaning the condition has not become true yet.
func Pending[T any]() Result[T] {
	return Result[T]{}
}

// IsDone reports whether the probe considered the condition satisfied.
func (r Result[T]) IsDone() bool {
	return r.done
}

// Value returns the payload and whether the result is done.
// For a pending result the payload is the zero value of T.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.done
}

// Probe checks whether the awaited condition has become true.
//
// A probe usually queries an external system (a billing backend, a cloud
// API) and inspects the answer. Returning an error does not end the
// session: the attempt counts as not done and the poller retries until the
// deadline. Panics are recovered the same way.
//
// The context is the session context. It is cancelled when the caller
// stops the session, never because the deadline passed, so an in-flight
// probe is allowed to finish.
type Probe[T any] func(ctx context.Context) (Result[T], error)

// Callbacks receives the outcome of a poll session.
//
// All callbacks of one session run on the session goroutine, one at a time.
// Nil callbacks are skipped. A panicking callback is recovered and logged.
//
// Per session: OnWarning fires at most once and always before the terminal
// callback; exactly one of OnSuccess or OnStop fires.
type Callbacks[T any] struct {
	// OnSuccess receives the payload of the first done result.
	OnSuccess func(T)

	// OnWarning fires once when the session has run longer than the
	// warning threshold without completing.
	OnWarning func()

	// OnStop fires when the deadline passes or the session is cancelled.
	OnStop func()
}

// Outcome is the terminal state of a poll session.
type Outcome string

const (
	// OutcomePending means the session is still running.
	OutcomePending Outcome = "pending"

	// OutcomeSucceeded means a probe reported done and OnSuccess fired.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeTimedOut means the deadline passed and OnStop fired.
	OutcomeTimedOut Outcome = "timed_out"

	// OutcomeCancelled means the caller cancelled the session and OnStop fired.
	OutcomeCancelled Outcome = "cancelled"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// Terminal reports whether the session has finished.
func (o Outcome) Terminal() bool {
	return o == OutcomeSucceeded || o == OutcomeTimedOut || o == OutcomeCancelled
}
