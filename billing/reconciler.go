package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/billpoll"
)

// ReconcileInitialDelay is the wait before the first backend read after a
// purchase.
const ReconcileInitialDelay = time.Second

// Reconciler waits for purchases to become visible on a [Backend].
//
// Every await starts an independent [billpoll.Session] using the
// reconciler's poll options; the session name identifies what is awaited.
type Reconciler struct {
	backend  Backend
	logger   *slog.Logger
	now      func() time.Time
	pollOpts []billpoll.Option
	name     string
}

// ReconcilerOption configures a [Reconciler].
type ReconcilerOption func(*Reconciler) error

// WithPollOptions appends options applied to every poll session, for
// example [billpoll.WithObserver] or [billpoll.WithRetryUntil].
func WithPollOptions(opts ...billpoll.Option) ReconcilerOption {
	return func(r *Reconciler) error {
		r.pollOpts = append(r.pollOpts, opts...)
		return nil
	}
}

// WithReconcilerLogger sets the logger for the reconciler and its sessions.
//
// Returns an error if the logger is nil.
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithNow sets the time source used to decide whether a subscription is
// active. Defaults to time.Now.
func WithNow(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) error {
		if now == nil {
			return errors.New("now func cannot be nil")
		}
		r.now = now
		return nil
	}
}

// NewReconciler returns a Reconciler for backend.
func NewReconciler(backend Backend, opts ...ReconcilerOption) (*Reconciler, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}

	r := &Reconciler{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// options returns the session options. A name set through withName takes
// precedence over defaultName.
func (r *Reconciler) options(defaultName string) []billpoll.Option {
	name := defaultName
	if r.name != "" {
		name = r.name
	}
	opts := []billpoll.Option{billpoll.WithLogger(r.logger)}
	opts = append(opts, r.pollOpts...)
	return append(opts, billpoll.WithName(name))
}

// PlanPurchase is the payload of [Reconciler.AwaitPlanPurchased].
type PlanPurchase struct {
	// Team is the active subscription on the purchased plan. If several
	// are active, it is the one that started last.
	Team TeamSubscription

	// Subscriptions is the full team subscription list.
	Subscriptions []TeamSubscription

	// Slots are the team slots, reloaded once the plan is active.
	Slots []Slot
}

// AwaitPlanPurchased polls until the backend lists an active team
// subscription for plan, then reloads the team slots. A failed slot read
// counts as a failed attempt.
func (r *Reconciler) AwaitPlanPurchased(ctx context.Context, plan Plan, cb billpoll.Callbacks[PlanPurchase]) (*billpoll.Session, error) {
	probe := func(ctx context.Context) (billpoll.Result[PlanPurchase], error) {
		subs, err := r.backend.TeamSubscriptions(ctx)
		if err != nil {
			return billpoll.Pending[PlanPurchase](), fmt.Errorf("list team subscriptions: %w", err)
		}

		team, ok := latestActive(subs, plan.ID, r.now())
		if !ok {
			return billpoll.Pending[PlanPurchase](), nil
		}

		slots, err := r.backend.TeamSlots(ctx)
		if err != nil {
			return billpoll.Pending[PlanPurchase](), fmt.Errorf("list team slots: %w", err)
		}
		return billpoll.Done(PlanPurchase{Team: team, Subscriptions: subs, Slots: slots}), nil
	}

	return billpoll.Poll(ctx, ReconcileInitialDelay, probe, cb, r.options("plan-purchased:"+plan.ID)...)
}

func latestActive(subs []TeamSubscription, planID string, now time.Time) (TeamSubscription, bool) {
	var latest TeamSubscription
	found := false
	for _, ts := range subs {
		if ts.PlanID != planID || !ts.IsActive(now) {
			continue
		}
		if !found || ts.StartDate.After(latest.StartDate) {
			latest, found = ts, true
		}
	}
	return latest, found
}

// AwaitAdditionalSlots polls until the backend lists more than known slots.
// The payload is the fresh slot list.
func (r *Reconciler) AwaitAdditionalSlots(ctx context.Context, known int, cb billpoll.Callbacks[[]Slot]) (*billpoll.Session, error) {
	if known < 0 {
		return nil, fmt.Errorf("known slots cannot be negative, got %d", known)
	}

	probe := func(ctx context.Context) (billpoll.Result[[]Slot], error) {
		slots, err := r.backend.TeamSlots(ctx)
		if err != nil {
			return billpoll.Pending[[]Slot](), fmt.Errorf("list team slots: %w", err)
		}
		if len(slots) > known {
			return billpoll.Done(slots), nil
		}
		return billpoll.Pending[[]Slot](), nil
	}

	return billpoll.Poll(ctx, ReconcileInitialDelay, probe, cb, r.options(fmt.Sprintf("slots-added:%d", known))...)
}

// BuySlots buys quantity more slots for ts and then waits for them to
// appear. known is the number of slots the caller currently sees.
//
// It returns [ErrPlanMismatch] if ts is not on plan and a wrapped
// [*PaymentError] if the charge is rejected; in both cases no session is
// started.
func (r *Reconciler) BuySlots(ctx context.Context, ts TeamSubscription, plan Plan, quantity, known int, cb billpoll.Callbacks[[]Slot]) (*billpoll.Session, error) {
	if ts.PlanID != plan.ID {
		return nil, fmt.Errorf("%w: subscription %s is on %s, not %s", ErrPlanMismatch, ts.ID, ts.PlanID, plan.ID)
	}
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	if err := r.backend.AddSlots(ctx, ts.ID, quantity); err != nil {
		r.logger.Warn("adding slots failed",
			"team_subscription_id", ts.ID,
			"quantity", quantity,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("add slots to %s: %w", ts.ID, err)
	}

	return r.AwaitAdditionalSlots(ctx, known, cb)
}

// StartCheckout creates the hosted checkout page for quantity seats of a
// team plan.
func (r *Reconciler) StartCheckout(ctx context.Context, plan Plan, quantity int) (HostedPage, error) {
	if _, err := TeamQuote(plan, quantity); err != nil {
		return HostedPage{}, err
	}

	page, err := r.backend.Checkout(ctx, plan.ID, quantity)
	if err != nil {
		return HostedPage{}, fmt.Errorf("checkout %s: %w", plan.ID, err)
	}
	return page, nil
}

// CheckoutCompleted is called once the payment widget reported success.
// It starts waiting for the plan to become active.
func (r *Reconciler) CheckoutCompleted(ctx context.Context, plan Plan, cb billpoll.Callbacks[PlanPurchase]) (*billpoll.Session, error) {
	r.logger.Info("checkout completed, awaiting subscription", "plan_id", plan.ID)
	return r.AwaitPlanPurchased(ctx, plan, cb)
}

// WatchKind selects what a [Watch] waits for.
type WatchKind string

const (
	WatchPlanPurchased WatchKind = "plan_purchased"
	WatchSlotsAdded    WatchKind = "slots_added"
)

// Watch is a declarative await, as loaded from configuration.
type Watch struct {
	Name       string
	Kind       WatchKind
	Plan       Plan // plan_purchased
	KnownSlots int  // slots_added
}

// WatchPayload is the result of a finished [Watch]. Subscriptions is only
// set for plan_purchased; Slots is set for both kinds.
type WatchPayload struct {
	Subscriptions []TeamSubscription
	Slots         []Slot
}

// Watch starts the await described by w.
func (r *Reconciler) Watch(ctx context.Context, w Watch, cb billpoll.Callbacks[WatchPayload]) (*billpoll.Session, error) {
	switch w.Kind {
	case WatchPlanPurchased:
		return r.withName(w.Name).AwaitPlanPurchased(ctx, w.Plan, billpoll.Callbacks[PlanPurchase]{
			OnSuccess: wrapSuccess(cb.OnSuccess, func(p PlanPurchase) WatchPayload {
				return WatchPayload{Subscriptions: p.Subscriptions, Slots: p.Slots}
			}),
			OnWarning: cb.OnWarning,
			OnStop:    cb.OnStop,
		})
	case WatchSlotsAdded:
		return r.withName(w.Name).AwaitAdditionalSlots(ctx, w.KnownSlots, billpoll.Callbacks[[]Slot]{
			OnSuccess: wrapSuccess(cb.OnSuccess, func(slots []Slot) WatchPayload {
				return WatchPayload{Slots: slots}
			}),
			OnWarning: cb.OnWarning,
			OnStop:    cb.OnStop,
		})
	default:
		return nil, fmt.Errorf("unknown watch kind %q", w.Kind)
	}
}

// withName returns a shallow copy whose sessions are named name.
// An empty name keeps the default session name.
func (r *Reconciler) withName(name string) *Reconciler {
	if name == "" {
		return r
	}
	cp := *r
	cp.name = name
	return &cp
}

func wrapSuccess[T any](fn func(WatchPayload), conv func(T) WatchPayload) func(T) {
	if fn == nil {
		return nil
	}
	return func(v T) { fn(conv(v)) }
}
