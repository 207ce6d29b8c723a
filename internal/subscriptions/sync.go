package subscriptions

import (
	"context"

	"github.com/quillwork/worksheets-backend/pkg/db/models"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/stripe/stripe-go/v84"
)

// UpsertFromStripe locates the row that owns sub (by subscription id, then
// customer, then user) and saves the Stripe state onto it. userID may be empty
// when the subscription metadata carries it.
func UpsertFromStripe(ctx context.Context, repo Repository, sub *stripe.Subscription, userID string, catalog PriceCatalog) (*models.Subscription, error) {
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}

	stored, err := repo.FindByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription by stripe id")
	}
	if stored == nil && sub.Customer != nil {
		if stored, err = repo.FindByStripeCustomerID(ctx, sub.Customer.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription by customer")
		}
	}
	if stored == nil {
		if userID == "" {
			if userID, err = UserIDFromMetadata(sub.Metadata); err != nil {
				return nil, err
			}
		}
		if stored, err = repo.FindByUserID(ctx, userID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription by user")
		}
		if stored == nil {
			stored = &models.Subscription{UserID: userID}
		}
	}

	if err := ApplyStripeSubscription(stored, sub, catalog); err != nil {
		return nil, err
	}
	if err := repo.Save(ctx, stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
	}
	return stored, nil
}
