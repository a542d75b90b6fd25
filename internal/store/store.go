package store

import "time"

// SessionStatus is the latest known state of one poll session.
type SessionStatus struct {
	// ID is the unique session ID.
	ID string `json:"id"`

	// Name is the session name, e.g. "plan-purchased:team-professional-eur".
	Name string `json:"name"`

	// Outcome is "pending" while running, then "succeeded", "timed_out"
	// or "cancelled".
	Outcome string `json:"outcome"`

	// Attempts is the number of probe calls made so far.
	Attempts int `json:"attempts"`

	// Warned is true once the session ran past its warning threshold.
	Warned bool `json:"warned"`

	// ElapsedMs is the time since session start at the last event.
	ElapsedMs int64 `json:"elapsed_ms"`

	// NextDelayMs is the wait before the next attempt, zero when finished.
	NextDelayMs int64 `json:"next_delay_ms"`

	// LastError is the most recent probe error, cleared by a clean attempt.
	LastError *string `json:"last_error"`

	// UpdatedAt is the time of the last event.
	UpdatedAt time.Time `json:"updated_at"`
}

// Finished reports whether the session reached a terminal outcome.
func (s SessionStatus) Finished() bool {
	return s.Outcome != "" && s.Outcome != "pending"
}

// Store defines the interface for storing and subscribing to session
// status updates.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a status and notifies all subscribers.
	// Statuses are keyed by ID, so later updates replace earlier ones.
	Update(status SessionStatus)

	// Get returns the status of one session.
	Get(id string) (SessionStatus, bool)

	// GetAll returns a snapshot of all statuses, oldest session first.
	GetAll() []SessionStatus

	// Subscribe returns a channel that receives status updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan SessionStatus

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan SessionStatus)
}
