package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/quillwork/worksheets-backend/api/routes"
	"github.com/quillwork/worksheets-backend/internal/billing"
	"github.com/quillwork/worksheets-backend/internal/exports"
	"github.com/quillwork/worksheets-backend/internal/quota"
	"github.com/quillwork/worksheets-backend/internal/render"
	"github.com/quillwork/worksheets-backend/internal/subscriptions"
	"github.com/quillwork/worksheets-backend/internal/usage"
	stripewebhook "github.com/quillwork/worksheets-backend/internal/webhooks/stripe"
	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/db"
	"github.com/quillwork/worksheets-backend/pkg/instance"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/quillwork/worksheets-backend/pkg/metrics"
	"github.com/quillwork/worksheets-backend/pkg/migrate"
	"github.com/quillwork/worksheets-backend/pkg/redis"
	"github.com/quillwork/worksheets-backend/pkg/storage"
	"github.com/quillwork/worksheets-backend/pkg/stripe"
)

const (
	webhookScope    = "stripe-webhook"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	store, err := storage.New(context.Background(), cfg.Storage, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap storage", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledger, err := usage.NewService(usage.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create usage ledger", err)
		os.Exit(1)
	}

	subsRepo := subscriptions.NewRepository(dbClient.DB())
	subsService, err := subscriptions.NewService(subsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	policy, err := quota.NewPolicy(quota.PolicyParams{Counter: ledger, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota policy", err)
		os.Exit(1)
	}

	pipeline, err := render.NewPipeline(render.PipelineParams{
		Renderer:  render.NewPDFRenderer("Worksheets"),
		Store:     store,
		KeyPrefix: cfg.Storage.KeyPrefix,
		TempDir:   cfg.Export.TempDir,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create render pipeline", err)
		os.Exit(1)
	}

	exportService, err := exports.NewService(exports.ServiceParams{
		Ledger:        ledger,
		Quota:         policy,
		Plans:         subsService,
		Producer:      pipeline,
		RenderTimeout: cfg.Export.RenderTimeout,
		Metrics:       metrics.NewExportMetrics(registry),
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create export service", err)
		os.Exit(1)
	}

	deps := routes.Dependencies{
		DB:            dbClient,
		Redis:         redisClient,
		Limiter:       redisClient,
		Exports:       exportService,
		Gatherer:      registry,
		HTTP:          metrics.NewHTTPMetrics(registry),
		Subscriptions: subsService,
	}
	if local, ok := store.(*storage.Local); ok {
		deps.Files = local.Handler(routes.FilesPrefix)
	}

	if cfg.Stripe.Enabled() {
		if err := wireStripe(cfg, logg, dbClient, subsRepo, &deps); err != nil {
			logg.Error(context.Background(), "failed to wire stripe", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "stripe not configured; billing and webhook routes disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func wireStripe(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, subsRepo subscriptions.Repository, deps *routes.Dependencies) error {
	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		return err
	}
	catalog := subscriptions.NewPriceCatalog(cfg.Stripe)

	billingService, err := billing.NewService(billing.ServiceParams{
		Subscriptions: subsRepo,
		Stripe:        billing.NewStripeClient(stripeClient),
		Catalog:       catalog,
		Config:        cfg.Stripe,
	})
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Subscriptions:     subsRepo,
		StripeClient:      subscriptions.NewStripeClient(stripeClient),
		Catalog:           catalog,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	guard, err := stripewebhook.NewEventGuard(deps.Redis, stripewebhook.DefaultClaimTTL, webhookScope)
	if err != nil {
		return err
	}

	deps.Billing = billingService
	deps.StripeClient = stripeClient
	deps.StripeWebhook = webhookService
	deps.WebhookGuard = guard
	return nil
}
