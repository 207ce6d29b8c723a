package subscriptions

import (
	"strings"

	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/enums"
)

// PriceCatalog maps configured Stripe price IDs to plans and back.
type PriceCatalog struct {
	byPrice map[string]enums.SubscriptionPlan
	byPlan  map[enums.SubscriptionPlan]string
}

func NewPriceCatalog(cfg config.StripeConfig) PriceCatalog {
	catalog := PriceCatalog{
		byPrice: map[string]enums.SubscriptionPlan{},
		byPlan:  map[enums.SubscriptionPlan]string{},
	}
	catalog.add(enums.SubscriptionPlanBasic, cfg.PriceBasic)
	catalog.add(enums.SubscriptionPlanPro, cfg.PricePro)
	catalog.add(enums.SubscriptionPlanPremium, cfg.PricePremium)
	return catalog
}

func (c PriceCatalog) add(plan enums.SubscriptionPlan, priceID string) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return
	}
	c.byPrice[priceID] = plan
	c.byPlan[plan] = priceID
}

// PlanForPrice returns the plan sold under priceID.
func (c PriceCatalog) PlanForPrice(priceID string) (enums.SubscriptionPlan, bool) {
	plan, ok := c.byPrice[strings.TrimSpace(priceID)]
	return plan, ok
}

// PriceForPlan returns the Stripe price configured for plan.
func (c PriceCatalog) PriceForPlan(plan enums.SubscriptionPlan) (string, bool) {
	price, ok := c.byPlan[plan]
	return price, ok
}
