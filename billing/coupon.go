package billing

// Coupon is a discount the payment provider grants on one plan.
type Coupon struct {
	PlanID      string  `json:"plan_id"`
	NewPrice    float64 `json:"new_price"`
	Description string  `json:"description,omitempty"`
}

// Offer is a plan as presented to the user, possibly discounted.
type Offer struct {
	Plan
	// OriginalPrice is the undiscounted price when a coupon applied.
	OriginalPrice float64 `json:"original_price,omitempty"`
	Discounted    bool    `json:"discounted,omitempty"`
}

// ApplyCoupon returns plan with the first matching coupon applied.
// Without a matching coupon the offer is the plan unchanged.
func ApplyCoupon(plan Plan, coupons []Coupon) Offer {
	for _, c := range coupons {
		if c.PlanID != plan.ID {
			continue
		}
		discounted := plan
		discounted.PricePerMonth = c.NewPrice
		if discounted.PricePerMonth < 0 {
			discounted.PricePerMonth = 0
		}
		return Offer{Plan: discounted, OriginalPrice: plan.PricePerMonth, Discounted: true}
	}
	return Offer{Plan: plan}
}
