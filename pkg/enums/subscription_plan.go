package enums

// SubscriptionPlan is the tier a user pays for; it drives the monthly export quota.
type SubscriptionPlan string

const (
	SubscriptionPlanFree    SubscriptionPlan = "free"
	SubscriptionPlanBasic   SubscriptionPlan = "basic"
	SubscriptionPlanPro     SubscriptionPlan = "pro"
	SubscriptionPlanPremium SubscriptionPlan = "premium"
)

var subscriptionPlans = setOf(
	SubscriptionPlanFree,
	SubscriptionPlanBasic,
	SubscriptionPlanPro,
	SubscriptionPlanPremium,
)

func (p SubscriptionPlan) String() string { return string(p) }

func (p SubscriptionPlan) IsValid() bool {
	_, ok := subscriptionPlans[p]
	return ok
}

// IsPaid reports whether the plan is purchased through billing.
func (p SubscriptionPlan) IsPaid() bool {
	return p.IsValid() && p != SubscriptionPlanFree
}

// ParseSubscriptionPlan is case-insensitive.
func ParseSubscriptionPlan(value string) (SubscriptionPlan, error) {
	return parse("subscription plan", value, subscriptionPlans)
}
