package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Currency is the billing currency of a plan.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// Symbol returns the display symbol of the currency.
func (c Currency) Symbol() string {
	if c == EUR {
		return "€"
	}
	return "$"
}

// ParseCurrency parses a currency code, case-insensitively.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case USD:
		return USD, nil
	case EUR:
		return EUR, nil
	default:
		return "", fmt.Errorf("unknown currency %q (valid: USD, EUR)", s)
	}
}

// PlanType groups plans that are offered in several currencies.
type PlanType string

const (
	PlanTypeFree            PlanType = "free"
	PlanTypeFree50          PlanType = "free-50"
	PlanTypeFreeOpenSource  PlanType = "free-open-source"
	PlanTypePersonal        PlanType = "personal"
	PlanTypeProfessionalNew PlanType = "professional-new"
	PlanTypeProfessional    PlanType = "professional"
	PlanTypeStudent         PlanType = "student"
)

// UnlimitedHours marks a plan without an hour quota.
const UnlimitedHours = -1

// Plan is a purchasable (or free) plan.
type Plan struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          PlanType `json:"type"`
	Currency      Currency `json:"currency"`
	PricePerMonth float64  `json:"price_per_month"`
	HoursPerMonth int      `json:"hours_per_month"`
	Team          bool     `json:"team,omitempty"`
}

// IsFree reports whether the plan costs nothing.
func (p Plan) IsFree() bool {
	return p.PricePerMonth <= 0.001
}

// Hours returns the monthly hour quota for display.
func (p Plan) Hours() string {
	if p.HoursPerMonth == UnlimitedHours {
		return "∞"
	}
	return strconv.Itoa(p.HoursPerMonth)
}

// PriceLabel returns "FREE" or the monthly price with the currency symbol.
func (p Plan) PriceLabel() string {
	if p.IsFree() {
		return "FREE"
	}
	return p.Currency.Symbol() + formatAmount(p.PricePerMonth) + " per month"
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// free50StartDate is the first sign-up date that receives the 50-hour free
// plan instead of the original 100-hour one.
var free50StartDate = time.Date(2019, 12, 19, 0, 0, 0, 0, time.UTC)

var (
	planFree           = Plan{ID: "free", Name: "Open Source", Type: PlanTypeFree, Currency: USD, HoursPerMonth: 100}
	planFree50         = Plan{ID: "free-50", Name: "Open Source", Type: PlanTypeFree50, Currency: USD, HoursPerMonth: 50}
	planFreeOpenSource = Plan{ID: "free-open-source", Name: "Professional Open Source", Type: PlanTypeFreeOpenSource, Currency: USD, HoursPerMonth: UnlimitedHours}
)

var catalog = []Plan{
	planFree,
	planFree50,
	planFreeOpenSource,

	{ID: "personal-eur", Name: "Personal", Type: PlanTypePersonal, Currency: EUR, PricePerMonth: 8, HoursPerMonth: 100},
	{ID: "personal-usd", Name: "Personal", Type: PlanTypePersonal, Currency: USD, PricePerMonth: 9, HoursPerMonth: 100},
	{ID: "professional-new-eur", Name: "Professional", Type: PlanTypeProfessionalNew, Currency: EUR, PricePerMonth: 23, HoursPerMonth: UnlimitedHours},
	{ID: "professional-new-usd", Name: "Professional", Type: PlanTypeProfessionalNew, Currency: USD, PricePerMonth: 25, HoursPerMonth: UnlimitedHours},
	{ID: "professional-eur", Name: "Unleashed", Type: PlanTypeProfessional, Currency: EUR, PricePerMonth: 35, HoursPerMonth: UnlimitedHours},
	{ID: "professional-usd", Name: "Unleashed", Type: PlanTypeProfessional, Currency: USD, PricePerMonth: 39, HoursPerMonth: UnlimitedHours},

	{ID: "team-professional-eur", Name: "Team Unleashed", Type: PlanTypeProfessional, Currency: EUR, PricePerMonth: 35, HoursPerMonth: UnlimitedHours, Team: true},
	{ID: "team-professional-usd", Name: "Team Unleashed", Type: PlanTypeProfessional, Currency: USD, PricePerMonth: 39, HoursPerMonth: UnlimitedHours, Team: true},
	{ID: "team-professional-new-eur", Name: "Team Professional", Type: PlanTypeProfessionalNew, Currency: EUR, PricePerMonth: 23, HoursPerMonth: UnlimitedHours, Team: true},
	{ID: "team-professional-new-usd", Name: "Team Professional", Type: PlanTypeProfessionalNew, Currency: USD, PricePerMonth: 25, HoursPerMonth: UnlimitedHours, Team: true},
	{ID: "team-student-eur", Name: "Team Students", Type: PlanTypeStudent, Currency: EUR, PricePerMonth: 8, HoursPerMonth: UnlimitedHours, Team: true},
	{ID: "team-student-usd", Name: "Team Students", Type: PlanTypeStudent, Currency: USD, PricePerMonth: 9, HoursPerMonth: UnlimitedHours, Team: true},
}

// Catalog returns a copy of every known plan.
func Catalog() []Plan {
	return append([]Plan(nil), catalog...)
}

// PlanByID looks up a plan by its ID.
func PlanByID(id string) (Plan, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// IsFreePlan reports whether id names one of the free plans.
func IsFreePlan(id string) bool {
	switch id {
	case planFree.ID, planFree50.ID, planFreeOpenSource.ID:
		return true
	}
	return false
}

// FreeOpenSourcePlan returns the free plan granted to open source
// maintainers.
func FreeOpenSourcePlan() Plan {
	return planFreeOpenSource
}

// FreePlan returns the default free plan for a user who signed up at
// userCreated.
func FreePlan(userCreated time.Time) Plan {
	if userCreated.Before(free50StartDate) {
		return planFree
	}
	return planFree50
}

// PersonalPlan returns the personal plan in currency c.
func PersonalPlan(c Currency) Plan {
	return mustIndividual(PlanTypePersonal, c)
}

// ProfessionalPlan returns the current professional plan in currency c.
func ProfessionalPlan(c Currency) Plan {
	return mustIndividual(PlanTypeProfessionalNew, c)
}

// UnleashedPlan returns the unleashed (legacy professional) plan in
// currency c.
func UnleashedPlan(c Currency) Plan {
	return mustIndividual(PlanTypeProfessional, c)
}

func mustIndividual(t PlanType, c Currency) Plan {
	for _, p := range catalog {
		if !p.Team && p.Type == t && p.Currency == c {
			return p
		}
	}
	panic(fmt.Sprintf("billing: no %s plan in %s", t, c))
}

// TeamPlanTypes lists the team plan types in the order they are offered.
var TeamPlanTypes = []PlanType{PlanTypeProfessional, PlanTypeProfessionalNew, PlanTypeStudent}

// TeamPlans returns every plan that can be bought for a team.
func TeamPlans() []Plan {
	var plans []Plan
	for _, p := range catalog {
		if p.Team {
			plans = append(plans, p)
		}
	}
	return plans
}

// TeamPlanByType returns the team plan of type t in currency c.
func TeamPlanByType(t PlanType, c Currency) (Plan, bool) {
	for _, p := range catalog {
		if p.Team && p.Type == t && p.Currency == c {
			return p, true
		}
	}
	return Plan{}, false
}

// euroRegions are the ISO 3166 country codes whose currency is the euro.
var euroRegions = map[string]bool{
	"AD": true, "AT": true, "BE": true, "CY": true, "DE": true, "EE": true,
	"ES": true, "FI": true, "FR": true, "GR": true, "HR": true, "IE": true,
	"IT": true, "LT": true, "LU": true, "LV": true, "MC": true, "ME": true,
	"MT": true, "NL": true, "PT": true, "SI": true, "SK": true, "SM": true,
	"VA": true, "XK": true,
}

// CurrencyForRegion returns EUR for euro-area country codes and USD for
// everything else, including an unknown or empty region.
func CurrencyForRegion(region string) Currency {
	if euroRegions[strings.ToUpper(strings.TrimSpace(region))] {
		return EUR
	}
	return USD
}
