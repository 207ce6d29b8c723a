package enums

// SubscriptionStatus mirrors Stripe's subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

var subscriptionStatuses = setOf(
	SubscriptionStatusTrialing,
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
	SubscriptionStatusCanceled,
	SubscriptionStatusIncomplete,
	SubscriptionStatusIncompleteExpired,
	SubscriptionStatusUnpaid,
	SubscriptionStatusPaused,
)

// past_due keeps its plan while Stripe retries the charge.
var entitledStatuses = setOf(
	SubscriptionStatusActive,
	SubscriptionStatusTrialing,
	SubscriptionStatusPastDue,
)

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool {
	_, ok := subscriptionStatuses[s]
	return ok
}

// Entitled reports whether a subscription in this state still grants its plan.
func (s SubscriptionStatus) Entitled() bool {
	_, ok := entitledStatuses[s]
	return ok
}

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	return parse("subscription status", value, subscriptionStatuses)
}
