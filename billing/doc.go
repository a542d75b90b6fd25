// Package billing holds the billing domain of the dashboard: the plan
// catalog, subscriptions and team slots, coupons, and the reconciliation
// of hosted checkouts with a backend that learns about purchases
// asynchronously.
//
// # Plans
//
// The catalog is static and priced per [Currency]:
//
//	plan := billing.ProfessionalPlan(billing.EUR)
//	fmt.Println(plan.PriceLabel()) // €23 per month
//
// [Overview] computes everything the plans screen shows for one user:
// active subscriptions, the current free and paid plan, the currency and
// the plan cards with coupons applied.
//
// # Reconciliation
//
// After the payment widget reports success, the backend may take seconds
// to see the purchase. A [Reconciler] polls the [Backend] with
// [billpoll.Poll] until the change is visible:
//
//	r, _ := billing.NewReconciler(backend)
//	r.CheckoutCompleted(ctx, plan, billpoll.Callbacks[billing.PlanPurchase]{
//	    OnSuccess: func(p billing.PlanPurchase) { refresh(p.Team, p.Slots) },
//	    OnWarning: func() { showSlowNotice() },
//	    OnStop:    func() { showContactSupport() },
//	})
package billing
