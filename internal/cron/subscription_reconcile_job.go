package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/quillwork/worksheets-backend/internal/subscriptions"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultReconcileLimit    = 250
	defaultReconcileLookback = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SubscriptionReconcileJobParams configures the Stripe subscription sync job.
type SubscriptionReconcileJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Subscriptions subscriptions.Repository
	StripeClient  subscriptions.StripeSubscriptionClient
	Catalog       subscriptions.PriceCatalog
	Limit         int
	Lookback      time.Duration
}

// NewSubscriptionReconcileJob builds a job that re-reads stale subscriptions
// from Stripe, covering webhooks that were lost or arrived out of order.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.StripeClient == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:     params.Logger,
		db:       params.DB,
		subs:     params.Subscriptions,
		stripe:   params.StripeClient,
		catalog:  params.Catalog,
		limit:    limit,
		lookback: lookback,
	}, nil
}

type subscriptionReconcileJob struct {
	logg     *logger.Logger
	db       txRunner
	subs     subscriptions.Repository
	stripe   subscriptions.StripeSubscriptionClient
	catalog  subscriptions.PriceCatalog
	limit    int
	lookback time.Duration
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	snapshot, err := j.subs.ListForReconciliation(ctx, j.limit, j.lookback)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}
	var errs error
	synced := 0
	for i := range snapshot {
		if err := j.reconcile(ctx, &snapshot[i]); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		synced++
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(snapshot),
		"synced":     synced,
	}), "subscription reconcile loop complete")
	return errs
}

func (j *subscriptionReconcileJob) reconcile(ctx context.Context, sub *models.Subscription) error {
	if sub.StripeSubscriptionID == nil {
		return nil
	}
	stripeID := *sub.StripeSubscriptionID
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"user_id":                sub.UserID,
		"stripe_subscription_id": stripeID,
	})

	live, err := j.stripe.Get(logCtx, stripeID, &stripe.SubscriptionParams{})
	if err != nil {
		return fmt.Errorf("fetch stripe subscription %s: %w", stripeID, err)
	}
	if err := j.db.WithTx(logCtx, func(tx *gorm.DB) error {
		stored, err := subscriptions.UpsertFromStripe(logCtx, j.subs.WithTx(tx), live, sub.UserID, j.catalog)
		if err != nil {
			return err
		}
		j.logg.Info(j.logg.WithFields(logCtx, map[string]any{
			"status": stored.Status.String(),
			"plan":   stored.EffectivePlan().String(),
		}), "subscription reconciled")
		return nil
	}); err != nil {
		return fmt.Errorf("persist subscription %s: %w", stripeID, err)
	}
	return nil
}
