package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quillwork/worksheets-backend/internal/subscriptions"
	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/db"
	"github.com/quillwork/worksheets-backend/pkg/db/models"
	"github.com/quillwork/worksheets-backend/pkg/enums"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubStripeSubscriptions struct {
	subs map[string]*stripe.Subscription
	gets []string
}

func (s *stubStripeSubscriptions) Get(_ context.Context, id string, _ *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.gets = append(s.gets, id)
	sub, ok := s.subs[id]
	if !ok {
		return nil, errors.New("resource_missing")
	}
	return sub, nil
}

func setupReconcileDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Subscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func seedStaleSubscription(t *testing.T, conn *gorm.DB, repo subscriptions.Repository, userID, stripeID string) {
	t.Helper()
	sub := &models.Subscription{
		UserID:               userID,
		Plan:                 enums.SubscriptionPlanBasic,
		Status:               enums.SubscriptionStatusActive,
		StripeCustomerID:     ptr("cus_" + userID),
		StripeSubscriptionID: ptr(stripeID),
	}
	if err := repo.Save(context.Background(), sub); err != nil {
		t.Fatalf("seed %s: %v", userID, err)
	}
	stale := time.Now().UTC().Add(-48 * time.Hour)
	if err := conn.Model(&models.Subscription{}).Where("id = ?", sub.ID).UpdateColumn("updated_at", stale).Error; err != nil {
		t.Fatalf("age %s: %v", userID, err)
	}
}

func ptr(v string) *string { return &v }

func TestSubscriptionReconcileSyncsStaleRows(t *testing.T) {
	conn := setupReconcileDB(t)
	repo := subscriptions.NewRepository(conn)
	seedStaleSubscription(t, conn, repo, "user-1", "sub_1")
	seedStaleSubscription(t, conn, repo, "user-2", "sub_missing")

	client := &stubStripeSubscriptions{subs: map[string]*stripe.Subscription{
		"sub_1": {
			ID:       "sub_1",
			Status:   stripe.SubscriptionStatusActive,
			Customer: &stripe.Customer{ID: "cus_user-1"},
			Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
				Price:            &stripe.Price{ID: "price_pro"},
				CurrentPeriodEnd: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC).Unix(),
			}}},
		},
	}}

	job, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{
		Logger:        logger.Nop(),
		DB:            db.Wrap(conn),
		Subscriptions: repo,
		StripeClient:  client,
		Catalog:       subscriptions.NewPriceCatalog(config.StripeConfig{PriceBasic: "price_basic", PricePro: "price_pro"}),
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatalf("expected aggregated error for missing subscription")
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected 1 error, got %d: %v", got, err)
	}
	if len(client.gets) != 2 {
		t.Fatalf("expected both rows fetched, got %v", client.gets)
	}

	stored, err := repo.FindByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Plan != enums.SubscriptionPlanPro {
		t.Fatalf("expected plan pro after reconcile, got %s", stored.Plan)
	}
	if stored.CurrentPeriodEnd == nil {
		t.Fatalf("expected period end to be set")
	}

	untouched, err := repo.FindByUserID(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if untouched.Plan != enums.SubscriptionPlanBasic {
		t.Fatalf("expected failed row unchanged, got %s", untouched.Plan)
	}
}

func TestSubscriptionReconcileSkipsFreshRows(t *testing.T) {
	conn := setupReconcileDB(t)
	repo := subscriptions.NewRepository(conn)
	if err := repo.Save(context.Background(), &models.Subscription{
		UserID:               "user-1",
		Plan:                 enums.SubscriptionPlanBasic,
		Status:               enums.SubscriptionStatusActive,
		StripeSubscriptionID: ptr("sub_1"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	client := &stubStripeSubscriptions{subs: map[string]*stripe.Subscription{}}
	job, err := NewSubscriptionReconcileJob(SubscriptionReconcileJobParams{
		Logger:        logger.Nop(),
		DB:            db.Wrap(conn),
		Subscriptions: repo,
		StripeClient:  client,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(client.gets) != 0 {
		t.Fatalf("expected no stripe fetches, got %v", client.gets)
	}
}
