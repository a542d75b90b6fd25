package billing

import (
	"fmt"
	"time"
)

// MaxTeamSeats is the largest number of seats a team can be created with.
const MaxTeamSeats = 20

// OverviewInput is everything the plans screen loads for one user.
type OverviewInput struct {
	Statement        AccountStatement
	UserCreated      time.Time
	ClientRegion     string
	AvailableCoupons []Coupon
	AppliedCoupons   []Coupon
	Now              time.Time

	// Currency overrides the region when set. A paid plan's currency
	// still takes precedence.
	Currency Currency
}

// PlanCard is one plan as shown on the plans screen.
type PlanCard struct {
	Offer    Offer    `json:"offer"`
	Selected bool     `json:"selected"`
	Features []string `json:"features"`
}

// PlansOverview is the computed state of the plans screen.
type PlansOverview struct {
	ActiveSubscriptions       []Subscription `json:"active_subscriptions"`
	AssignedTeamSubscriptions []Subscription `json:"assigned_team_subscriptions"`
	FreePlan                  Plan           `json:"free_plan"`
	PaidPlan                  *Plan          `json:"paid_plan,omitempty"`
	Currency                  Currency       `json:"currency"`
	Cards                     []PlanCard     `json:"cards"`
	RemainingHours            string         `json:"remaining_hours"`
}

// CurrentPlanName returns the name of the plan the user is on.
func (o PlansOverview) CurrentPlanName() string {
	if o.PaidPlan != nil {
		return o.PaidPlan.Name
	}
	return o.FreePlan.Name
}

var (
	openSourceFeatures   = []string{"Public Repositories", "4 Parallel Workspaces", "30 min Timeout"}
	personalFeatures     = []string{"Everything in Free", "Private Repositories"}
	professionalFeatures = []string{"Everything in Personal", "8 Parallel Workspaces", "Teams"}
	unleashedFeatures    = []string{"Everything in Professional", "16 Parallel Workspaces", "1h Timeout", "3h Timeout Boost"}
)

// Overview computes the plans screen for one user.
//
// The free plan prefers an active free-open-source subscription, then any
// active free subscription, then the default free plan for the user's
// sign-up date. The currency follows the paid plan, else the requested
// currency, else the client region.
// The card of the current paid plan shows applied coupons; the other cards
// show available coupons.
func Overview(in OverviewInput) PlansOverview {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var out PlansOverview
	for _, s := range in.Statement.Subscriptions {
		if !s.IsActive(now) {
			continue
		}
		out.ActiveSubscriptions = append(out.ActiveSubscriptions, s)
		if s.IsAssignedTeam() {
			out.AssignedTeamSubscriptions = append(out.AssignedTeamSubscriptions, s)
		}
	}

	out.FreePlan = pickFreePlan(out.ActiveSubscriptions, in.UserCreated)

	for _, s := range out.ActiveSubscriptions {
		if !s.IsUserPaid() {
			continue
		}
		if p, ok := PlanByID(s.PlanID); ok {
			out.PaidPlan = &p
			break
		}
	}

	switch {
	case out.PaidPlan != nil:
		out.Currency = out.PaidPlan.Currency
	case in.Currency != "":
		out.Currency = in.Currency
	default:
		out.Currency = CurrencyForRegion(in.ClientRegion)
	}

	out.Cards = append(out.Cards, PlanCard{
		Offer:    Offer{Plan: out.FreePlan},
		Selected: out.PaidPlan == nil,
		Features: openSourceFeatures,
	})

	paid := []struct {
		plan     Plan
		features []string
	}{
		{PersonalPlan(out.Currency), personalFeatures},
		{ProfessionalPlan(out.Currency), professionalFeatures},
		{UnleashedPlan(out.Currency), unleashedFeatures},
	}
	for _, c := range paid {
		selected := out.PaidPlan != nil && out.PaidPlan.ID == c.plan.ID
		coupons := in.AvailableCoupons
		if selected {
			coupons = in.AppliedCoupons
		}
		out.Cards = append(out.Cards, PlanCard{
			Offer:    ApplyCoupon(c.plan, coupons),
			Selected: selected,
			Features: c.features,
		})
	}

	out.RemainingHours = in.Statement.RemainingHoursLabel()
	return out
}

func pickFreePlan(active []Subscription, userCreated time.Time) Plan {
	for _, s := range active {
		if s.PlanID == planFreeOpenSource.ID {
			return planFreeOpenSource
		}
	}
	for _, s := range active {
		if IsFreePlan(s.PlanID) {
			if p, ok := PlanByID(s.PlanID); ok {
				return p
			}
		}
	}
	if userCreated.IsZero() {
		userCreated = time.Now()
	}
	return FreePlan(userCreated)
}

// Quote is the expected monthly cost of a new team.
type Quote struct {
	Plan     Plan    `json:"plan"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
}

// Label returns the total followed by the currency symbol, e.g. "115€".
func (q Quote) Label() string {
	return formatAmount(q.Total) + q.Plan.Currency.Symbol()
}

// TeamQuote prices quantity seats of a team plan.
func TeamQuote(plan Plan, quantity int) (Quote, error) {
	if !plan.Team {
		return Quote{}, fmt.Errorf("plan %q is not a team plan", plan.ID)
	}
	if quantity < 1 || quantity > MaxTeamSeats {
		return Quote{}, fmt.Errorf("quantity must be between 1 and %d, got %d", MaxTeamSeats, quantity)
	}
	return Quote{
		Plan:     plan,
		Quantity: quantity,
		Total:    float64(quantity) * plan.PricePerMonth,
	}, nil
}
