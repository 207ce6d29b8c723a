package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/quillwork/worksheets-backend/internal/subscriptions"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Subscriptions     subscriptions.Repository
	StripeClient      subscriptions.StripeSubscriptionClient
	Catalog           subscriptions.PriceCatalog
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type Service struct {
	subs     subscriptions.Repository
	stripe   subscriptions.StripeSubscriptionClient
	catalog  subscriptions.PriceCatalog
	txRunner txRunner
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		subs:     params.Subscriptions,
		stripe:   params.StripeClient,
		catalog:  params.Catalog,
		txRunner: params.TransactionRunner,
		logg:     logg,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.completeCheckout(ctx, &session)
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.syncSubscription(ctx, &stripeSub, "")
	case stripe.EventTypeInvoicePaid,
		stripe.EventTypeInvoicePaymentSucceeded,
		stripe.EventTypeInvoicePaymentFailed:
		subscriptionID := invoiceSubscriptionID(event)
		if subscriptionID == "" {
			// one-off invoices have no subscription to sync
			return nil
		}
		return s.syncRemote(ctx, subscriptionID, "")
	default:
		return nil
	}
}

func (s *Service) completeCheckout(ctx context.Context, session *stripe.CheckoutSession) error {
	userID := strings.TrimSpace(session.ClientReferenceID)
	if userID == "" {
		userID = strings.TrimSpace(session.Metadata[subscriptions.MetadataUserID])
	}
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no user reference")
	}

	if session.Subscription != nil && session.Subscription.ID != "" {
		return s.syncRemote(ctx, session.Subscription.ID, userID)
	}
	if session.Customer == nil || session.Customer.ID == "" {
		return nil
	}

	// no subscription attached yet; remember the customer for later events
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.subs.WithTx(tx)
		stored, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if stored == nil {
			stored = &models.Subscription{
				UserID: userID,
				Plan:   enums.SubscriptionPlanFree,
				Status: enums.SubscriptionStatusIncomplete,
			}
		}
		customerID := session.Customer.ID
		stored.StripeCustomerID = &customerID
		return repo.Save(ctx, stored)
	})
}

func (s *Service) syncRemote(ctx context.Context, subscriptionID, userID string) error {
	stripeSub, err := s.stripe.Get(ctx, subscriptionID, &stripe.SubscriptionParams{})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	return s.syncSubscription(ctx, stripeSub, userID)
}

func (s *Service) syncSubscription(ctx context.Context, stripeSub *stripe.Subscription, userID string) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		stored, err := subscriptions.UpsertFromStripe(ctx, s.subs.WithTx(tx), stripeSub, userID, s.catalog)
		if err != nil {
			return err
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"user_id":                stored.UserID,
			"stripe_subscription_id": stripeSub.ID,
			"plan":                   stored.Plan.String(),
			"status":                 stored.Status.String(),
		}), "subscription synced")
		return nil
	})
}

// invoiceSubscriptionID reads the subscription an invoice belongs to, either
// the legacy top-level field or parent.subscription_details. One-off invoices
// carry neither and yield "".
func invoiceSubscriptionID(event *stripe.Event) string {
	if event.Data == nil {
		return ""
	}
	obj := event.Data.Object
	if id := objectID(obj["subscription"]); id != "" {
		return id
	}
	parent, _ := obj["parent"].(map[string]any)
	details, _ := parent["subscription_details"].(map[string]any)
	return objectID(details["subscription"])
}

// objectID accepts a bare id or an expanded object.
func objectID(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		id, _ := val["id"].(string)
		return id
	}
	return ""
}
