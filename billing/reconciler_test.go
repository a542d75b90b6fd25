package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/billpoll"
	"github.com/jpalmerr/billpoll/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend makes purchases visible after a number of reads.
type fakeBackend struct {
	mu sync.Mutex

	subs        []TeamSubscription
	slots       []Slot
	visibleAt   int // reads before pending changes become visible
	pendingSubs []TeamSubscription
	pendingSlot []Slot
	reads       int
	readErr     error
	slotErrs    int // slot reads that fail before succeeding

	addSlotsErr error
	added       map[string]int
	checkouts   []string
}

func (b *fakeBackend) read() {
	b.reads++
	if b.reads > b.visibleAt {
		b.subs = append(b.subs, b.pendingSubs...)
		b.slots = append(b.slots, b.pendingSlot...)
		b.pendingSubs, b.pendingSlot = nil, nil
	}
}

func (b *fakeBackend) TeamSubscriptions(ctx context.Context) ([]TeamSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	b.read()
	return append([]TeamSubscription(nil), b.subs...), nil
}

func (b *fakeBackend) TeamSlots(ctx context.Context) ([]Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	if b.slotErrs > 0 {
		b.slotErrs--
		return nil, errors.New("slots unavailable")
	}
	b.read()
	return append([]Slot(nil), b.slots...), nil
}

func (b *fakeBackend) AddSlots(ctx context.Context, id string, quantity int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.addSlotsErr != nil {
		return b.addSlotsErr
	}
	if b.added == nil {
		b.added = make(map[string]int)
	}
	b.added[id] += quantity
	return nil
}

func (b *fakeBackend) Checkout(ctx context.Context, planID string, quantity int) (HostedPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkouts = append(b.checkouts, planID)
	return HostedPage{ID: "hp_1", URL: "https://checkout.example.com/hp_1"}, nil
}

func (b *fakeBackend) ShowPaymentUI(ctx context.Context) (bool, error) {
	return true, nil
}

func (b *fakeBackend) AccountStatement(ctx context.Context) (AccountStatement, error) {
	return AccountStatement{}, nil
}

func newTestReconciler(t *testing.T, b Backend, extra ...billpoll.Option) *Reconciler {
	t.Helper()
	opts := append([]billpoll.Option{billpoll.WithClock(clock.NewFake(day0))}, extra...)
	r, err := NewReconciler(b,
		WithReconcilerLogger(testLogger()),
		WithNow(func() time.Time { return day1 }),
		WithPollOptions(opts...),
	)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	return r
}

func TestNewReconciler_Validation(t *testing.T) {
	if _, err := NewReconciler(nil); err == nil {
		t.Error("NewReconciler(nil) expected error, got nil")
	}
	if _, err := NewReconciler(&fakeBackend{}, WithReconcilerLogger(nil)); err == nil {
		t.Error("NewReconciler() expected error for nil logger, got nil")
	}
	if _, err := NewReconciler(&fakeBackend{}, WithNow(nil)); err == nil {
		t.Error("NewReconciler() expected error for nil now, got nil")
	}
}

func TestAwaitPlanPurchased_Succeeds(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeProfessionalNew, EUR)
	b := &fakeBackend{
		visibleAt: 3,
		subs: []TeamSubscription{
			{ID: "old", PlanID: plan.ID, StartDate: day0, EndDate: &day0}, // expired, must not count
		},
		pendingSubs: []TeamSubscription{{ID: "ts-1", PlanID: plan.ID, Quantity: 5, StartDate: day0}},
		pendingSlot: []Slot{{ID: "s1", TeamSubscriptionID: "ts-1"}, {ID: "s2", TeamSubscriptionID: "ts-1"}},
	}
	r := newTestReconciler(t, b)

	var got PlanPurchase
	var stopped bool
	s, err := r.CheckoutCompleted(context.Background(), plan, billpoll.Callbacks[PlanPurchase]{
		OnSuccess: func(p PlanPurchase) { got = p },
		OnStop:    func() { stopped = true },
	})
	if err != nil {
		t.Fatalf("CheckoutCompleted() error = %v", err)
	}

	if outcome := s.Wait(); outcome != billpoll.OutcomeSucceeded {
		t.Fatalf("Wait() = %v, want %v", outcome, billpoll.OutcomeSucceeded)
	}
	if stopped {
		t.Error("OnStop fired for a successful session")
	}
	if len(got.Subscriptions) != 2 {
		t.Errorf("len(Subscriptions) = %d, want 2 (full list)", len(got.Subscriptions))
	}
	if got.Team.ID != "ts-1" {
		t.Errorf("Team.ID = %q, want ts-1", got.Team.ID)
	}
	if len(got.Slots) != 2 {
		t.Errorf("len(Slots) = %d, want 2 (reloaded after activation)", len(got.Slots))
	}
	if s.Attempts() != 4 {
		t.Errorf("Attempts() = %d, want 4", s.Attempts())
	}
	if s.Name() != "plan-purchased:"+plan.ID {
		t.Errorf("Name() = %q, want %q", s.Name(), "plan-purchased:"+plan.ID)
	}
}

func TestAwaitPlanPurchased_PicksLatestActive(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeStudent, EUR)
	later := day0.Add(time.Hour)
	b := &fakeBackend{
		subs: []TeamSubscription{
			{ID: "ts-new", PlanID: plan.ID, StartDate: later},
			{ID: "ts-old", PlanID: plan.ID, StartDate: day0},
			{ID: "ts-other", PlanID: "team-professional-eur", StartDate: day1},
		},
	}
	r := newTestReconciler(t, b)

	var got PlanPurchase
	s, err := r.AwaitPlanPurchased(context.Background(), plan, billpoll.Callbacks[PlanPurchase]{
		OnSuccess: func(p PlanPurchase) { got = p },
	})
	if err != nil {
		t.Fatalf("AwaitPlanPurchased() error = %v", err)
	}
	if outcome := s.Wait(); outcome != billpoll.OutcomeSucceeded {
		t.Fatalf("Wait() = %v, want %v", outcome, billpoll.OutcomeSucceeded)
	}
	if got.Team.ID != "ts-new" {
		t.Errorf("Team.ID = %q, want ts-new", got.Team.ID)
	}
}

func TestAwaitPlanPurchased_SlotReadFailureRetried(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeProfessional, USD)
	b := &fakeBackend{
		subs:     []TeamSubscription{{ID: "ts-1", PlanID: plan.ID, StartDate: day0}},
		slots:    []Slot{{ID: "s1", TeamSubscriptionID: "ts-1"}},
		slotErrs: 2,
	}
	r := newTestReconciler(t, b)

	var errs int
	var mu sync.Mutex
	r.pollOpts = append(r.pollOpts, billpoll.WithObserver(func(ev billpoll.Event) {
		if ev.Kind == billpoll.EventProbeError {
			mu.Lock()
			errs++
			mu.Unlock()
		}
	}))

	var got PlanPurchase
	s, err := r.AwaitPlanPurchased(context.Background(), plan, billpoll.Callbacks[PlanPurchase]{
		OnSuccess: func(p PlanPurchase) { got = p },
	})
	if err != nil {
		t.Fatalf("AwaitPlanPurchased() error = %v", err)
	}
	if outcome := s.Wait(); outcome != billpoll.OutcomeSucceeded {
		t.Fatalf("Wait() = %v, want %v", outcome, billpoll.OutcomeSucceeded)
	}
	if s.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", s.Attempts())
	}
	if len(got.Slots) != 1 {
		t.Errorf("len(Slots) = %d, want 1", len(got.Slots))
	}

	mu.Lock()
	defer mu.Unlock()
	if errs != 2 {
		t.Errorf("probe error events = %d, want 2", errs)
	}
}

func TestAwaitPlanPurchased_OtherPlanTimesOut(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeStudent, USD)
	b := &fakeBackend{
		subs: []TeamSubscription{{ID: "ts-1", PlanID: "team-professional-usd", StartDate: day0}},
	}
	r := newTestReconciler(t, b)

	var warned, stopped bool
	s, err := r.AwaitPlanPurchased(context.Background(), plan, billpoll.Callbacks[PlanPurchase]{
		OnSuccess: func(PlanPurchase) { t.Error("OnSuccess fired for wrong plan") },
		OnWarning: func() { warned = true },
		OnStop:    func() { stopped = true },
	})
	if err != nil {
		t.Fatalf("AwaitPlanPurchased() error = %v", err)
	}

	if outcome := s.Wait(); outcome != billpoll.OutcomeTimedOut {
		t.Errorf("Wait() = %v, want %v", outcome, billpoll.OutcomeTimedOut)
	}
	if !warned || !stopped {
		t.Errorf("warned = %v, stopped = %v, want both true", warned, stopped)
	}
}

func TestAwaitPlanPurchased_BackendErrorsRetried(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeProfessional, EUR)
	b := &fakeBackend{readErr: errors.New("connection refused")}
	r := newTestReconciler(t, b, billpoll.WithRetryUntil(10*time.Second))

	var errs int
	var mu sync.Mutex
	r.pollOpts = append(r.pollOpts, billpoll.WithObserver(func(ev billpoll.Event) {
		if ev.Kind == billpoll.EventProbeError {
			mu.Lock()
			errs++
			mu.Unlock()
		}
	}))

	s, err := r.AwaitPlanPurchased(context.Background(), plan, billpoll.Callbacks[PlanPurchase]{})
	if err != nil {
		t.Fatalf("AwaitPlanPurchased() error = %v", err)
	}
	if outcome := s.Wait(); outcome != billpoll.OutcomeTimedOut {
		t.Errorf("Wait() = %v, want %v", outcome, billpoll.OutcomeTimedOut)
	}

	mu.Lock()
	defer mu.Unlock()
	if errs != s.Attempts() {
		t.Errorf("probe error events = %d, want %d", errs, s.Attempts())
	}
}

func TestBuySlots_Succeeds(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeProfessionalNew, USD)
	ts := TeamSubscription{ID: "ts-1", PlanID: plan.ID, StartDate: day0}
	b := &fakeBackend{
		visibleAt:   1,
		slots:       []Slot{{ID: "s1"}, {ID: "s2"}},
		pendingSlot: []Slot{{ID: "s3"}, {ID: "s4"}},
	}
	r := newTestReconciler(t, b)

	var got []Slot
	s, err := r.BuySlots(context.Background(), ts, plan, 2, 2, billpoll.Callbacks[[]Slot]{
		OnSuccess: func(slots []Slot) { got = slots },
	})
	if err != nil {
		t.Fatalf("BuySlots() error = %v", err)
	}

	if outcome := s.Wait(); outcome != billpoll.OutcomeSucceeded {
		t.Fatalf("Wait() = %v, want %v", outcome, billpoll.OutcomeSucceeded)
	}
	if len(got) != 4 {
		t.Errorf("len(slots) = %d, want 4", len(got))
	}
	if b.added["ts-1"] != 2 {
		t.Errorf("added[ts-1] = %d, want 2", b.added["ts-1"])
	}
}

func TestBuySlots_PlanMismatch(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeProfessionalNew, USD)
	ts := TeamSubscription{ID: "ts-1", PlanID: "team-student-usd"}
	b := &fakeBackend{}
	r := newTestReconciler(t, b)

	s, err := r.BuySlots(context.Background(), ts, plan, 2, 0, billpoll.Callbacks[[]Slot]{})
	if !errors.Is(err, ErrPlanMismatch) {
		t.Errorf("BuySlots() error = %v, want ErrPlanMismatch", err)
	}
	if s != nil {
		t.Error("BuySlots() started a session on plan mismatch")
	}
	if len(b.added) != 0 {
		t.Error("BuySlots() called AddSlots on plan mismatch")
	}
}

func TestBuySlots_PaymentError(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeProfessionalNew, USD)
	ts := TeamSubscription{ID: "ts-1", PlanID: plan.ID}
	b := &fakeBackend{addSlotsErr: &PaymentError{Message: "card declined"}}
	r := newTestReconciler(t, b)

	s, err := r.BuySlots(context.Background(), ts, plan, 1, 0, billpoll.Callbacks[[]Slot]{})
	if err == nil {
		t.Fatal("BuySlots() expected error, got nil")
	}

	var pe *PaymentError
	if !errors.As(err, &pe) {
		t.Fatalf("BuySlots() error = %v, want *PaymentError", err)
	}
	if pe.Message != "card declined" {
		t.Errorf("PaymentError.Message = %q, want %q", pe.Message, "card declined")
	}
	if s != nil {
		t.Error("BuySlots() started a session after a payment error")
	}
}

func TestStartCheckout(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeStudent, EUR)
	b := &fakeBackend{}
	r := newTestReconciler(t, b)

	page, err := r.StartCheckout(context.Background(), plan, 3)
	if err != nil {
		t.Fatalf("StartCheckout() error = %v", err)
	}
	if page.ID != "hp_1" {
		t.Errorf("page.ID = %q, want %q", page.ID, "hp_1")
	}
	if len(b.checkouts) != 1 || b.checkouts[0] != plan.ID {
		t.Errorf("checkouts = %v, want [%s]", b.checkouts, plan.ID)
	}

	if _, err := r.StartCheckout(context.Background(), plan, MaxTeamSeats+1); err == nil {
		t.Error("StartCheckout() expected error for too many seats, got nil")
	}
}

func TestWatch(t *testing.T) {
	plan, _ := TeamPlanByType(PlanTypeProfessional, USD)
	b := &fakeBackend{
		visibleAt:   2,
		pendingSubs: []TeamSubscription{{ID: "ts-9", PlanID: plan.ID, StartDate: day0}},
		pendingSlot: []Slot{{ID: "s1"}},
	}
	r := newTestReconciler(t, b)

	tests := []struct {
		name  string
		watch Watch
		check func(t *testing.T, p WatchPayload)
	}{
		{
			name:  "plan purchased",
			watch: Watch{Name: "new-team", Kind: WatchPlanPurchased, Plan: plan},
			check: func(t *testing.T, p WatchPayload) {
				if len(p.Subscriptions) != 1 || len(p.Slots) != 1 {
					t.Errorf("payload = %+v, want one subscription and its slot", p)
				}
			},
		},
		{
			name:  "slots added",
			watch: Watch{Name: "more-seats", Kind: WatchSlotsAdded, KnownSlots: 0},
			check: func(t *testing.T, p WatchPayload) {
				if len(p.Slots) != 1 || p.Subscriptions != nil {
					t.Errorf("payload = %+v, want one slot", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload WatchPayload
			s, err := r.Watch(context.Background(), tt.watch, billpoll.Callbacks[WatchPayload]{
				OnSuccess: func(p WatchPayload) { payload = p },
			})
			if err != nil {
				t.Fatalf("Watch() error = %v", err)
			}
			if outcome := s.Wait(); outcome != billpoll.OutcomeSucceeded {
				t.Fatalf("Wait() = %v, want %v", outcome, billpoll.OutcomeSucceeded)
			}
			if s.Name() != tt.watch.Name {
				t.Errorf("Name() = %q, want %q", s.Name(), tt.watch.Name)
			}
			tt.check(t, payload)
		})
	}

	if _, err := r.Watch(context.Background(), Watch{Kind: "refund"}, billpoll.Callbacks[WatchPayload]{}); err == nil {
		t.Error("Watch() expected error for unknown kind, got nil")
	}
}

func TestAwaitAdditionalSlots_NegativeKnown(t *testing.T) {
	r := newTestReconciler(t, &fakeBackend{})
	if _, err := r.AwaitAdditionalSlots(context.Background(), -1, billpoll.Callbacks[[]Slot]{}); err == nil {
		t.Error("AwaitAdditionalSlots(-1) expected error, got nil")
	}
}
