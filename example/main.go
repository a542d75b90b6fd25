package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/billpoll"
	"github.com/jpalmerr/billpoll/billing"
	"github.com/jpalmerr/billpoll/example/mockbilling"
	"github.com/jpalmerr/billpoll/internal/backend"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("example failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// start the mock backend; purchases show up 4 seconds after checkout
	mock := &mockbilling.Server{Delay: 4 * time.Second, DeclineAbove: 10, Logger: logger}
	go func() {
		if err := http.ListenAndServe(":9999", mock.Handler()); err != nil {
			logger.Error("mock backend error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	client, err := backend.New("http://localhost:9999")
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}
	defer client.Close()

	reconciler, err := billing.NewReconciler(client,
		billing.WithReconcilerLogger(logger),
		billing.WithPollOptions(billpoll.WithWarningAfter(3*time.Second)),
	)
	if err != nil {
		return fmt.Errorf("create reconciler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plan, ok := billing.TeamPlanByType(billing.PlanTypeProfessionalNew, billing.EUR)
	if !ok {
		return errors.New("no team professional plan in EUR")
	}
	quote, err := billing.TeamQuote(plan, 3)
	if err != nil {
		return err
	}
	fmt.Printf("Buying 3 seats of %s for %s per month\n", plan.Name, quote.Label())

	page, err := reconciler.StartCheckout(ctx, plan, 3)
	if err != nil {
		return err
	}
	fmt.Printf("Hosted checkout: %s\n", page.URL)

	// the payment widget reported success; wait for the backend to agree
	var purchase billing.PlanPurchase
	session, err := reconciler.CheckoutCompleted(ctx, plan, billpoll.Callbacks[billing.PlanPurchase]{
		OnSuccess: func(p billing.PlanPurchase) {
			purchase = p
			fmt.Printf("Team subscription %s is active with %d seats\n", p.Team.ID, len(p.Slots))
		},
		OnWarning: func() { fmt.Println("This is taking a little longer than usual...") },
		OnStop:    func() { fmt.Println("Gave up waiting for the subscription") },
	})
	if err != nil {
		return fmt.Errorf("start polling: %w", err)
	}
	if outcome := session.Wait(); outcome != billpoll.OutcomeSucceeded {
		return fmt.Errorf("checkout not confirmed: %s", outcome)
	}

	known := len(purchase.Slots)

	// a second purchase that the mock declines
	_, err = reconciler.BuySlots(ctx, purchase.Team, plan, 12, known, billpoll.Callbacks[[]billing.Slot]{})
	var payErr *billing.PaymentError
	if errors.As(err, &payErr) {
		fmt.Printf("Buying 12 more seats was declined: %s\n", payErr.Message)
	}

	session, err = reconciler.BuySlots(ctx, purchase.Team, plan, 2, known, billpoll.Callbacks[[]billing.Slot]{
		OnSuccess: func(slots []billing.Slot) { fmt.Printf("Team now has %d seats\n", len(slots)) },
		OnStop:    func() { fmt.Println("Gave up waiting for the new seats") },
	})
	if err != nil {
		return fmt.Errorf("buy slots: %w", err)
	}
	session.Wait()
	return nil
}
