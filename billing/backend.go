package billing

import (
	"context"
	"errors"
	"fmt"
)

// ErrPlanMismatch is returned when slots are bought for a team
// subscription under a different plan.
var ErrPlanMismatch = errors.New("team subscription plan does not match")

// PaymentError is returned by a [Backend] when the payment provider
// rejected a charge.
type PaymentError struct {
	Message string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment error: %s", e.Message)
}

// HostedPage is a checkout page opened by the payment widget.
type HostedPage struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	State string `json:"state,omitempty"`
}

// Backend is the billing server as seen from the dashboard.
//
// Purchases made through a hosted checkout reach the backend
// asynchronously, so reads may lag behind a successful payment.
type Backend interface {
	// TeamSubscriptions lists the caller's team subscriptions.
	TeamSubscriptions(ctx context.Context) ([]TeamSubscription, error)
	// TeamSlots lists the slots of all of the caller's team subscriptions.
	TeamSlots(ctx context.Context) ([]Slot, error)
	// AddSlots buys quantity more slots for a team subscription.
	// A rejected charge is reported as a *PaymentError.
	AddSlots(ctx context.Context, teamSubscriptionID string, quantity int) error
	// Checkout creates a hosted checkout page for a new subscription.
	Checkout(ctx context.Context, planID string, quantity int) (HostedPage, error)
	// ShowPaymentUI reports whether payment screens are enabled.
	ShowPaymentUI(ctx context.Context) (bool, error)
	// AccountStatement returns the caller's account statement.
	AccountStatement(ctx context.Context) (AccountStatement, error)
}
