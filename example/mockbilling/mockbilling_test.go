package mockbilling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jpalmerr/billpoll"
	"github.com/jpalmerr/billpoll/billing"
	"github.com/jpalmerr/billpoll/internal/backend"
	"github.com/jpalmerr/billpoll/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHarness wires the mock, the HTTP client and a reconciler to one fake
// clock, so purchase visibility and poll timing share virtual time.
func newHarness(t *testing.T, mock *Server) (*backend.Client, *billing.Reconciler, *clock.Fake) {
	t.Helper()

	fake := clock.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	mock.Now = fake.Now
	mock.Logger = testLogger()

	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)

	client, err := backend.New(ts.URL, backend.WithRateLimit(0, 0))
	if err != nil {
		t.Fatalf("backend.New() error = %v", err)
	}
	t.Cleanup(client.Close)

	r, err := billing.NewReconciler(client,
		billing.WithReconcilerLogger(testLogger()),
		billing.WithNow(fake.Now),
		billing.WithPollOptions(billpoll.WithClock(fake)),
	)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	return client, r, fake
}

func TestCheckoutBecomesVisibleAfterDelay(t *testing.T) {
	_, r, fake := newHarness(t, &Server{Delay: 5 * time.Second})
	ctx := context.Background()

	plan, _ := billing.PlanByID("team-professional-new-eur")
	page, err := r.StartCheckout(ctx, plan, 3)
	if err != nil {
		t.Fatalf("StartCheckout() error = %v", err)
	}
	if page.ID == "" || page.URL == "" {
		t.Errorf("hosted page = %+v", page)
	}

	var got billing.PlanPurchase
	session, err := r.CheckoutCompleted(ctx, plan, billpoll.Callbacks[billing.PlanPurchase]{
		OnSuccess: func(p billing.PlanPurchase) { got = p },
	})
	if err != nil {
		t.Fatalf("CheckoutCompleted() error = %v", err)
	}

	if outcome := session.Wait(); outcome != billpoll.OutcomeSucceeded {
		t.Fatalf("outcome = %s, want succeeded", outcome)
	}
	// waits of 1s, 1.2s and 1.44s stay under the 5s delay; the fourth
	// attempt after another 1.728s sees the subscription
	if session.Attempts() != 4 {
		t.Errorf("Attempts() = %d, want 4", session.Attempts())
	}
	if got.Team.PlanID != plan.ID || got.Team.Quantity != 3 || got.Team.ID != page.ID {
		t.Errorf("team = %+v", got.Team)
	}
	if len(got.Subscriptions) != 1 || len(got.Slots) != 3 {
		t.Errorf("subscriptions = %d, slots = %d, want 1 and 3", len(got.Subscriptions), len(got.Slots))
	}
	if len(fake.Sleeps()) != 4 {
		t.Errorf("sleeps = %v, want 4", fake.Sleeps())
	}
}

func TestBuySlots(t *testing.T) {
	client, r, _ := newHarness(t, &Server{Delay: 2 * time.Second})
	ctx := context.Background()

	plan, _ := billing.PlanByID("team-student-usd")
	page, err := client.Checkout(ctx, plan.ID, 2)
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	ts := billing.TeamSubscription{ID: page.ID, PlanID: plan.ID, Quantity: 2}

	var slots []billing.Slot
	session, err := r.BuySlots(ctx, ts, plan, 3, 2, billpoll.Callbacks[[]billing.Slot]{
		OnSuccess: func(s []billing.Slot) { slots = s },
	})
	if err != nil {
		t.Fatalf("BuySlots() error = %v", err)
	}
	if outcome := session.Wait(); outcome != billpoll.OutcomeSucceeded {
		t.Fatalf("outcome = %s, want succeeded", outcome)
	}
	if len(slots) != 5 {
		t.Errorf("len(slots) = %d, want 5", len(slots))
	}
}

func TestBuySlots_Declined(t *testing.T) {
	client, r, _ := newHarness(t, &Server{DeclineAbove: 2})
	ctx := context.Background()

	plan, _ := billing.PlanByID("team-student-eur")
	page, err := client.Checkout(ctx, plan.ID, 1)
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}

	_, err = r.BuySlots(ctx, billing.TeamSubscription{ID: page.ID, PlanID: plan.ID}, plan, 5, 1, billpoll.Callbacks[[]billing.Slot]{})
	var payErr *billing.PaymentError
	if !errors.As(err, &payErr) {
		t.Fatalf("BuySlots() error = %v, want *billing.PaymentError", err)
	}
	if payErr.Message != "card declined" {
		t.Errorf("Message = %q, want %q", payErr.Message, "card declined")
	}
}

func TestAddSlots_UnknownSubscription(t *testing.T) {
	client, _, _ := newHarness(t, &Server{})

	err := client.AddSlots(context.Background(), "missing", 1)
	var statusErr *backend.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 404 {
		t.Errorf("AddSlots() error = %v, want 404 status error", err)
	}
}

func TestCheckout_Validation(t *testing.T) {
	client, _, _ := newHarness(t, &Server{})
	ctx := context.Background()

	tests := []struct {
		name     string
		planID   string
		quantity int
	}{
		{"individual plan", "personal-eur", 1},
		{"unknown plan", "gold", 1},
		{"too many seats", "team-student-eur", 21},
		{"no seats", "team-student-eur", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Checkout(ctx, tt.planID, tt.quantity)
			var statusErr *backend.StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != 400 {
				t.Errorf("Checkout() error = %v, want 400 status error", err)
			}
		})
	}
}

func TestAccountStatementAndPaymentUI(t *testing.T) {
	client, _, _ := newHarness(t, &Server{})
	ctx := context.Background()

	show, err := client.ShowPaymentUI(ctx)
	if err != nil || !show {
		t.Errorf("ShowPaymentUI() = %v, %v; want true, nil", show, err)
	}

	st, err := client.AccountStatement(ctx)
	if err != nil {
		t.Fatalf("AccountStatement() error = %v", err)
	}
	overview := billing.Overview(billing.OverviewInput{Statement: st, Now: st.EndDate.Add(-time.Hour)})
	if overview.FreePlan.ID != "free" {
		t.Errorf("FreePlan = %q, want free", overview.FreePlan.ID)
	}
	if overview.RemainingHours != "42" {
		t.Errorf("RemainingHours = %q, want 42", overview.RemainingHours)
	}
}
