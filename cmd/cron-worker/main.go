package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quillwork/worksheets-backend/internal/cron"
	"github.com/quillwork/worksheets-backend/internal/subscriptions"
	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/db"
	"github.com/quillwork/worksheets-backend/pkg/instance"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/quillwork/worksheets-backend/pkg/metrics"
	"github.com/quillwork/worksheets-backend/pkg/migrate"
	"github.com/quillwork/worksheets-backend/pkg/redis"
	"github.com/quillwork/worksheets-backend/pkg/stripe"
)

const lockNameFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	scratch, err := cron.NewScratchCleanupJob(cron.ScratchCleanupJobParams{
		Logger: logg,
		Dir:    cfg.Export.TempDir,
	})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(scratch)
	if err != nil {
		return nil, err
	}

	if !cfg.Stripe.Enabled() {
		logg.Warn(context.Background(), "stripe not configured; subscription reconcile job disabled")
		return registry, nil
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}
	reconcile, err := cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
		Logger:        logg,
		DB:            dbClient,
		Subscriptions: subscriptions.NewRepository(dbClient.DB()),
		StripeClient:  subscriptions.NewStripeClient(stripeClient),
		Catalog:       subscriptions.NewPriceCatalog(cfg.Stripe),
		Limit:         cfg.Cron.ReconcileBatchSize,
		Lookback:      cfg.Cron.ReconcileLookback,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(reconcile); err != nil {
		return nil, err
	}
	return registry, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}
