package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists subscription rows; lookups return nil, nil on a miss.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	FindByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*models.Subscription, error)
	Save(ctx context.Context, sub *models.Subscription) error
	ListForReconciliation(ctx context.Context, limit int, lookback time.Duration) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.first(ctx, "user_id = ?", userID)
}

func (r *repository) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	return r.first(ctx, "stripe_subscription_id = ?", stripeSubscriptionID)
}

func (r *repository) FindByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*models.Subscription, error) {
	if stripeCustomerID == "" {
		return nil, nil
	}
	return r.first(ctx, "stripe_customer_id = ?", stripeCustomerID)
}

func (r *repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// ListForReconciliation returns Stripe-backed rows not touched within lookback,
// oldest first.
func (r *repository) ListForReconciliation(ctx context.Context, limit int, lookback time.Duration) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 250
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-lookback)

	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("stripe_subscription_id IS NOT NULL AND stripe_subscription_id <> ''").
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) first(ctx context.Context, query string, arg any) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where(query, arg).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
