package subscriptions

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/stripe/stripe-go/v84"
)

// MetadataUserID is the Stripe metadata key that ties objects to a user.
const (
	MetadataUserID = "user_id"
	MetadataPlan   = "plan"
)

// ApplyStripeSubscription copies Stripe state onto target. The plan comes from
// the subscription's price, falling back to the plan recorded in metadata.
func ApplyStripeSubscription(target *models.Subscription, sub *stripe.Subscription, catalog PriceCatalog) error {
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "target subscription is nil")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}

	status, err := enums.ParseSubscriptionStatus(string(sub.Status))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalid stripe subscription status")
	}

	priceID, periodEnd := firstItem(sub)
	plan, ok := catalog.PlanForPrice(priceID)
	if !ok {
		if parsed, parseErr := enums.ParseSubscriptionPlan(sub.Metadata[MetadataPlan]); parseErr == nil {
			plan, ok = parsed, true
		}
	}
	if ok {
		target.Plan = plan
	} else if !target.Plan.IsValid() {
		target.Plan = enums.SubscriptionPlanFree
	}

	target.Status = status
	target.StripeSubscriptionID = trimmedPtr(sub.ID)
	if sub.Customer != nil {
		if id := trimmedPtr(sub.Customer.ID); id != nil {
			target.StripeCustomerID = id
		}
	}
	if p := trimmedPtr(priceID); p != nil {
		target.PriceID = p
	}
	target.CurrentPeriodEnd = toTimePtr(periodEnd)
	target.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	target.CanceledAt = toTimePtr(sub.CanceledAt)

	metadata, err := mergeMetadata(target.Metadata, sub.Metadata)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal metadata")
	}
	target.Metadata = metadata
	return nil
}

// UserIDFromMetadata extracts the user id attached to Stripe metadata.
func UserIDFromMetadata(metadata map[string]string) (string, error) {
	userID := strings.TrimSpace(metadata[MetadataUserID])
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user_id missing from metadata")
	}
	return userID, nil
}

func firstItem(sub *stripe.Subscription) (priceID string, periodEnd int64) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return "", 0
	}
	item := sub.Items.Data[0]
	if item.Price != nil {
		priceID = item.Price.ID
	}
	return priceID, item.CurrentPeriodEnd
}

func mergeMetadata(existing json.RawMessage, extras map[string]string) (json.RawMessage, error) {
	merged := map[string]string{}
	if len(existing) > 0 {
		// non-string values are dropped
		_ = json.Unmarshal(existing, &merged)
	}
	for k, v := range extras {
		if v == "" {
			continue
		}
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func trimmedPtr(value string) *string {
	if s := strings.TrimSpace(value); s != "" {
		return &s
	}
	return nil
}
