package billing

import "time"

// TeamSubscription is a subscription bought for a team, with a number of
// seats (slots) that can be assigned to members.
type TeamSubscription struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	PlanID           string     `json:"plan_id"`
	Quantity         int        `json:"quantity"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	CancellationDate *time.Time `json:"cancellation_date,omitempty"`
	Deleted          bool       `json:"deleted,omitempty"`
}

// IsActive reports whether the team subscription is in effect at now.
func (ts TeamSubscription) IsActive(now time.Time) bool {
	return !ts.Deleted && inPeriod(now, ts.StartDate, ts.EndDate)
}

// SlotState is the assignment state of a team slot.
type SlotState string

const (
	SlotFree        SlotState = "free"
	SlotAssigned    SlotState = "assigned"
	SlotDeactivated SlotState = "deactivated"
	SlotCancelled   SlotState = "cancelled"
)

// Slot is one seat of a team subscription.
type Slot struct {
	ID                 string     `json:"id"`
	TeamSubscriptionID string     `json:"team_subscription_id"`
	State              SlotState  `json:"state"`
	AssigneeID         string     `json:"assignee_id,omitempty"`
	AssigneeEmail      string     `json:"assignee_email,omitempty"`
	CancellationDate   *time.Time `json:"cancellation_date,omitempty"`
}

// SlotMap indexes slots by ID. Later duplicates replace earlier ones.
func SlotMap(slots []Slot) map[string]Slot {
	m := make(map[string]Slot, len(slots))
	for _, s := range slots {
		m[s.ID] = s
	}
	return m
}

// Subscription is one entry of a user's account statement.
//
// A subscription paid by the user carries a PaymentReference; one granted
// through a team carries the TeamSubscriptionSlotID it was assigned from.
type Subscription struct {
	UID                    string     `json:"uid"`
	UserID                 string     `json:"user_id"`
	PlanID                 string     `json:"plan_id"`
	StartDate              time.Time  `json:"start_date"`
	EndDate                *time.Time `json:"end_date,omitempty"`
	CancellationDate       *time.Time `json:"cancellation_date,omitempty"`
	PaymentReference       string     `json:"payment_reference,omitempty"`
	TeamSubscriptionSlotID string     `json:"team_subscription_slot_id,omitempty"`
	Deleted                bool       `json:"deleted,omitempty"`
}

// IsActive reports whether the subscription is in effect at now.
func (s Subscription) IsActive(now time.Time) bool {
	return !s.Deleted && inPeriod(now, s.StartDate, s.EndDate)
}

// IsUserPaid reports whether the user pays for the subscription directly.
func (s Subscription) IsUserPaid() bool {
	return s.PaymentReference != "" && s.TeamSubscriptionSlotID == "" && !IsFreePlan(s.PlanID)
}

// IsAssignedTeam reports whether the subscription comes from a team slot.
func (s Subscription) IsAssignedTeam() bool {
	return s.TeamSubscriptionSlotID != ""
}

// AccountStatement is the billing state of a user at a point in time.
type AccountStatement struct {
	UserID         string         `json:"user_id"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
	Subscriptions  []Subscription `json:"subscriptions"`
	RemainingHours float64        `json:"remaining_hours"`
	UnlimitedHours bool           `json:"unlimited_hours,omitempty"`
}

// RemainingHoursLabel returns the remaining hours for display.
func (a AccountStatement) RemainingHoursLabel() string {
	if a.UnlimitedHours {
		return "unlimited"
	}
	return formatAmount(a.RemainingHours)
}

// inPeriod reports whether now is within [start, end). A nil end is open.
func inPeriod(now, start time.Time, end *time.Time) bool {
	if now.Before(start) {
		return false
	}
	return end == nil || now.Before(*end)
}
