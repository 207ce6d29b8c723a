package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServicePlanFor(t *testing.T) {
	repo := NewRepository(setupSubscriptionTestDB(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	seed := []*models.Subscription{
		{UserID: "pro-active", Plan: enums.SubscriptionPlanPro, Status: enums.SubscriptionStatusActive},
		{UserID: "basic-trial", Plan: enums.SubscriptionPlanBasic, Status: enums.SubscriptionStatusTrialing},
		{UserID: "premium-past-due", Plan: enums.SubscriptionPlanPremium, Status: enums.SubscriptionStatusPastDue},
		{UserID: "pro-canceled", Plan: enums.SubscriptionPlanPro, Status: enums.SubscriptionStatusCanceled},
		{UserID: "basic-unpaid", Plan: enums.SubscriptionPlanBasic, Status: enums.SubscriptionStatusUnpaid},
	}
	for _, sub := range seed {
		require.NoError(t, repo.Save(ctx, sub))
	}

	cases := map[string]enums.SubscriptionPlan{
		"pro-active":       enums.SubscriptionPlanPro,
		"basic-trial":      enums.SubscriptionPlanBasic,
		"premium-past-due": enums.SubscriptionPlanPremium,
		"pro-canceled":     enums.SubscriptionPlanFree,
		"basic-unpaid":     enums.SubscriptionPlanFree,
		"no-row":           enums.SubscriptionPlanFree,
	}
	for userID, want := range cases {
		got, err := svc.PlanFor(ctx, userID)
		require.NoError(t, err, userID)
		assert.Equal(t, want, got, userID)
	}
}

func TestServicePlanForRequiresUser(t *testing.T) {
	svc, err := NewService(NewRepository(setupSubscriptionTestDB(t)))
	require.NoError(t, err)

	_, err = svc.PlanFor(context.Background(), " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceCurrent(t *testing.T) {
	repo := NewRepository(setupSubscriptionTestDB(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	view, err := svc.Current(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionPlanFree, view.Plan)
	assert.Nil(t, view.Status)

	end := time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &models.Subscription{
		UserID:            "paid-user",
		Plan:              enums.SubscriptionPlanBasic,
		Status:            enums.SubscriptionStatusActive,
		CurrentPeriodEnd:  &end,
		CancelAtPeriodEnd: true,
	}))

	view, err = svc.Current(ctx, "paid-user")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionPlanBasic, view.Plan)
	require.NotNil(t, view.Status)
	assert.Equal(t, enums.SubscriptionStatusActive, *view.Status)
	assert.True(t, view.CancelAtPeriodEnd)
	require.NotNil(t, view.CurrentPeriodEnd)
	assert.True(t, end.Equal(*view.CurrentPeriodEnd))
}
