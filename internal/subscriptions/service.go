package subscriptions

import (
	"context"
	"strings"
	"time"

	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
)

// View is the subscription summary returned to clients.
type View struct {
	Plan              enums.SubscriptionPlan    `json:"plan"`
	Status            *enums.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  *time.Time                `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool                      `json:"cancelAtPeriodEnd"`
}

// Service resolves plans for users.
type Service interface {
	PlanFor(ctx context.Context, userID string) (enums.SubscriptionPlan, error)
	Current(ctx context.Context, userID string) (*View, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repository required")
	}
	return &service{repo: repo}, nil
}

// PlanFor returns the plan a user is entitled to; users without a row are free.
func (s *service) PlanFor(ctx context.Context, userID string) (enums.SubscriptionPlan, error) {
	if strings.TrimSpace(userID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub.EffectivePlan(), nil
}

func (s *service) Current(ctx context.Context, userID string) (*View, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return &View{Plan: enums.SubscriptionPlanFree}, nil
	}
	status := sub.Status
	return &View{
		Plan:              sub.EffectivePlan(),
		Status:            &status,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}
