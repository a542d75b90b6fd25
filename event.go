package billpoll

import "time"

// EventKind identifies a step of a poll session reported to observers.
type EventKind string

const (
	// EventAttempt is emitted after a probe returned "not yet done".
	EventAttempt EventKind = "attempt"

	// EventProbeError is emitted after a probe failed or panicked.
	EventProbeError EventKind = "probe_error"

	// EventWarning is emitted when the warning threshold is crossed.
	EventWarning EventKind = "warning"

	// EventSuccess is emitted when a probe reported done.
	EventSuccess EventKind = "success"

	// EventStop is emitted when the session timed out or was cancelled.
	EventStop EventKind = "stop"
)

// Event describes one step of a poll session.
//
// Events are delivered to observers registered with [WithObserver], on the
// session goroutine, in the order the steps happen.
type Event struct {
	// SessionID is the unique ID of the session.
	SessionID string

	// Name is the session name set with [WithName].
	Name string

	// Kind is the step that happened.
	Kind EventKind

	// Attempt is the number of probe calls made so far.
	Attempt int

	// Elapsed is the time since the session started.
	Elapsed time.Duration

	// Delay is the wait before the next attempt. Zero on terminal events.
	Delay time.Duration

	// Outcome is the session state after this step.
	Outcome Outcome

	// Err is the probe failure for EventProbeError events.
	Err error

	// At is the clock time of the step.
	At time.Time
}
