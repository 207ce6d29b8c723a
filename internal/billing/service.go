package billing

import (
	"context"
	"strings"

	"github.com/quillwork/worksheets-backend/internal/subscriptions"
	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/db"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/stripe/stripe-go/v84"
)

const subscriptionUserConstraint = "ux_subscriptions_user"

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Subscriptions subscriptions.Repository
	Stripe        StripeClient
	Catalog       subscriptions.PriceCatalog
	Config        config.StripeConfig
}

// Service starts Stripe checkout and customer portal sessions.
type Service struct {
	subs       subscriptions.Repository
	stripe     StripeClient
	catalog    subscriptions.PriceCatalog
	successURL string
	cancelURL  string
	returnURL  string
}

// SessionResult is what clients need to redirect the user.
type SessionResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repository required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &Service{
		subs:       params.Subscriptions,
		stripe:     params.Stripe,
		catalog:    params.Catalog,
		successURL: params.Config.CheckoutSuccessURL,
		cancelURL:  params.Config.CheckoutCancelURL,
		returnURL:  params.Config.PortalReturnURL,
	}, nil
}

// CreateCheckoutSession opens a subscription checkout for plan.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, email string, plan enums.SubscriptionPlan) (*SessionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !plan.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan must be a paid plan").
			WithDetails(map[string]string{"plan": "must be one of: basic pro premium"})
	}
	priceID, ok := s.catalog.PriceForPlan(plan)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not available for purchase").
			WithDetails(map[string]string{"plan": "not configured"})
	}

	customerID, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				subscriptions.MetadataUserID: userID,
				subscriptions.MetadataPlan:   plan.String(),
			},
		},
	}
	params.AddMetadata(subscriptions.MetadataUserID, userID)
	params.AddMetadata(subscriptions.MetadataPlan, plan.String())

	session, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &SessionResult{ID: session.ID, URL: session.URL}, nil
}

// CreatePortalSession opens the Stripe customer portal for an existing customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID string) (*SessionResult, error) {
	sub, err := s.subs.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil || sub.StripeCustomerID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no billing account for user")
	}

	session, err := s.stripe.CreatePortalSession(ctx, &stripe.BillingPortalSessionParams{
		Customer:  sub.StripeCustomerID,
		ReturnURL: stripe.String(s.returnURL),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create portal session")
	}
	return &SessionResult{ID: session.ID, URL: session.URL}, nil
}

func (s *Service) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	sub, err := s.subs.FindByUserID(ctx, userID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub != nil && sub.StripeCustomerID != nil {
		return *sub.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{}
	if email = strings.TrimSpace(email); email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(subscriptions.MetadataUserID, userID)
	cust, err := s.stripe.CreateCustomer(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
	}

	if sub == nil {
		sub = &models.Subscription{
			UserID: userID,
			Plan:   enums.SubscriptionPlanFree,
			Status: enums.SubscriptionStatusIncomplete,
		}
	}
	sub.StripeCustomerID = &cust.ID
	if err := s.subs.Save(ctx, sub); err != nil {
		if !db.IsUniqueViolation(err, subscriptionUserConstraint) {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store stripe customer")
		}
		// a concurrent checkout created the row first; use its customer
		existing, findErr := s.subs.FindByUserID(ctx, userID)
		if findErr != nil || existing == nil || existing.StripeCustomerID == nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "billing account is being created")
		}
		return *existing.StripeCustomerID, nil
	}
	return cust.ID, nil
}
