package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillwork/worksheets-backend/pkg/enums"
)

// Subscription persists the Stripe subscription state for a user.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID               string                   `gorm:"column:user_id;type:text;not null;uniqueIndex:ux_subscriptions_user"`
	Plan                 enums.SubscriptionPlan   `gorm:"column:plan;type:text;not null;default:'free'"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:text;not null;default:'active'"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id;index:ix_subscriptions_stripe_customer"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id;uniqueIndex:ux_subscriptions_stripe_subscription"`
	PriceID              *string                  `gorm:"column:price_id"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	Metadata             json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// EffectivePlan is the plan the subscription grants right now.
func (s *Subscription) EffectivePlan() enums.SubscriptionPlan {
	if s == nil || !s.Plan.IsValid() || !s.Status.Entitled() {
		return enums.SubscriptionPlanFree
	}
	return s.Plan
}
