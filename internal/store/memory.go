package store

import (
	"sort"
	"sync"

	"github.com/jpalmerr/billpoll"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Subscribers receive updates via buffered channels (buffer size 100).
// Updates are sent non-blocking; if a subscriber's buffer is full, the
// update is dropped for that subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	statuses    map[string]SessionStatus
	order       map[string]int
	seq         int
	subscribers map[chan SessionStatus]struct{}
	subMu       sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses:    make(map[string]SessionStatus),
		order:       make(map[string]int),
		subscribers: make(map[chan SessionStatus]struct{}),
	}
}

// Update stores a [SessionStatus] and notifies all subscribers.
func (m *MemoryStore) Update(status SessionStatus) {
	m.mu.Lock()
	m.put(status)
	m.mu.Unlock()

	m.notifySubscribers(status)
}

// put stores status; m.mu must be held.
func (m *MemoryStore) put(status SessionStatus) {
	if _, ok := m.order[status.ID]; !ok {
		m.seq++
		m.order[status.ID] = m.seq
	}
	m.statuses[status.ID] = status
}

// Observe folds a poll session event into the session's status.
// It is meant to be registered with billpoll.WithObserver.
func (m *MemoryStore) Observe(ev billpoll.Event) {
	m.mu.Lock()
	status, ok := m.statuses[ev.SessionID]
	if !ok {
		status = SessionStatus{ID: ev.SessionID, Outcome: string(billpoll.OutcomePending)}
	}

	status.Name = ev.Name
	if ev.Attempt > status.Attempts {
		status.Attempts = ev.Attempt
	}
	status.ElapsedMs = ev.Elapsed.Milliseconds()
	status.NextDelayMs = ev.Delay.Milliseconds()
	status.UpdatedAt = ev.At
	if ev.Outcome != "" {
		status.Outcome = string(ev.Outcome)
	}

	switch ev.Kind {
	case billpoll.EventProbeError:
		if ev.Err != nil {
			msg := ev.Err.Error()
			status.LastError = &msg
		}
	case billpoll.EventAttempt, billpoll.EventSuccess:
		status.LastError = nil
	case billpoll.EventWarning:
		status.Warned = true
	case billpoll.EventStop:
		status.NextDelayMs = 0
	}

	m.put(status)
	m.mu.Unlock()

	m.notifySubscribers(status)
}

// Get returns the status of the session with the given ID.
func (m *MemoryStore) Get(id string) (SessionStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[id]
	return s, ok
}

// GetAll returns a snapshot of all stored statuses in the order the
// sessions were first seen. The returned slice is a copy.
func (m *MemoryStore) GetAll() []SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]SessionStatus, 0, len(m.statuses))
	for _, status := range m.statuses {
		results = append(results, status)
	}
	sort.Slice(results, func(i, j int) bool {
		return m.order[results[i].ID] < m.order[results[j].ID]
	})
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving
// updates. Caller must call [MemoryStore.Unsubscribe] when done.
func (m *MemoryStore) Subscribe() <-chan SessionStatus {
	ch := make(chan SessionStatus, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan SessionStatus) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the status to all active subscribers without
// blocking; a full subscriber buffer drops the message.
func (m *MemoryStore) notifySubscribers(status SessionStatus) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- status:
		default:
			// subscriber is slow, drop the message
		}
	}
}
