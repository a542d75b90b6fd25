package billpoll

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/billpoll/internal/clock"
)

// syncBuffer is a bytes.Buffer safe for concurrent writes from a logger.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCallbacks_PanicInSuccessRecovered(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	cb := Callbacks[string]{
		OnSuccess: func(string) { panic("render failed") },
	}

	outcome, err := Run(context.Background(), time.Second,
		func(ctx context.Context) (Result[string], error) { return Done("X"), nil },
		cb, WithClock(clock.NewFake(testStart)), WithLogger(logger))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome != OutcomeSucceeded {
		t.Errorf("Run() outcome = %v, want %v", outcome, OutcomeSucceeded)
	}
	if !strings.Contains(logs.String(), "poll callback panicked") {
		t.Error("expected callback panic to be logged")
	}
	if !strings.Contains(logs.String(), "callback=success") {
		t.Error("expected panic log to name the success callback")
	}
}

func TestCallbacks_PanicInWarningDoesNotStopSession(t *testing.T) {
	rec := &recorder{}
	calls := 0

	cb := Callbacks[string]{
		OnSuccess: func(v string) { rec.add("success:" + v) },
		OnWarning: func() {
			rec.add("warning")
			panic("banner missing")
		},
		OnStop: func() { rec.add("stop") },
	}

	outcome, err := Run(context.Background(), time.Second, sequenceProbe(14, "X", &calls), cb,
		WithClock(clock.NewFake(testStart)), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome != OutcomeSucceeded {
		t.Errorf("Run() outcome = %v, want %v", outcome, OutcomeSucceeded)
	}
	if got := rec.get(); !equalCalls(got, []string{"warning", "success:X"}) {
		t.Errorf("callbacks = %v, want [warning success:X]", got)
	}
}

func TestCallbacks_PanicInObserverRecovered(t *testing.T) {
	rec := &recorder{}
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	outcome, err := Run(context.Background(), time.Second,
		func(ctx context.Context) (Result[string], error) { return Done("X"), nil },
		rec.callbacks(),
		WithClock(clock.NewFake(testStart)),
		WithLogger(logger),
		WithObserver(func(Event) { panic("observer exploded") }),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome != OutcomeSucceeded {
		t.Errorf("Run() outcome = %v, want %v", outcome, OutcomeSucceeded)
	}
	if got := rec.get(); !equalCalls(got, []string{"success:X"}) {
		t.Errorf("callbacks = %v, want [success:X]", got)
	}
	if !strings.Contains(logs.String(), "callback=observer") {
		t.Error("expected observer panic to be logged")
	}
}

func TestCallbacks_ProbePanicLoggedWithCorrelationID(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	calls := 0

	probe := func(ctx context.Context) (Result[string], error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return Done("ok"), nil
	}

	_, err := Run(context.Background(), time.Second, probe, Callbacks[string]{},
		WithClock(clock.NewFake(testStart)), WithLogger(logger))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := logs.String()
	if !strings.Contains(out, "probe panic") {
		t.Error("expected probe panic to be logged")
	}
	if !strings.Contains(out, "correlation_id=") {
		t.Error("expected correlation_id in panic log")
	}
	if !strings.Contains(out, "stack=") {
		t.Error("expected stack trace in panic log")
	}
}

func TestEvents_Order(t *testing.T) {
	events := &eventLog{}
	calls := 0

	_, err := Run(context.Background(), time.Second, sequenceProbe(2, "X", &calls), Callbacks[string]{},
		WithClock(clock.NewFake(testStart)),
		WithLogger(testLogger()),
		WithName("ordered"),
		WithObserver(events.observe),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := events.get()
	want := []EventKind{EventAttempt, EventAttempt, EventSuccess}
	if len(got) != len(want) {
		t.Fatalf("len(events) = %d, want %d", len(got), len(want))
	}

	for i, ev := range got {
		if ev.Kind != want[i] {
			t.Errorf("events[%d].Kind = %v, want %v", i, ev.Kind, want[i])
		}
		if ev.Attempt != i+1 {
			t.Errorf("events[%d].Attempt = %d, want %d", i, ev.Attempt, i+1)
		}
		if ev.Name != "ordered" {
			t.Errorf("events[%d].Name = %q, want %q", i, ev.Name, "ordered")
		}
		if ev.SessionID == "" {
			t.Errorf("events[%d].SessionID is empty", i)
		}
	}

	if !approxEqual(got[0].Delay, 1200*time.Millisecond) {
		t.Errorf("events[0].Delay = %v, want 1.2s", got[0].Delay)
	}
	if got[2].Outcome != OutcomeSucceeded {
		t.Errorf("success event outcome = %v, want %v", got[2].Outcome, OutcomeSucceeded)
	}
}
