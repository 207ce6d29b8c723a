package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillwork/worksheets-backend/api/controllers"
	billingcontrollers "github.com/quillwork/worksheets-backend/api/controllers/billing"
	webhookcontrollers "github.com/quillwork/worksheets-backend/api/controllers/webhooks"
	"github.com/quillwork/worksheets-backend/api/middleware"
	"github.com/quillwork/worksheets-backend/internal/exports"
	stripewebhook "github.com/quillwork/worksheets-backend/internal/webhooks/stripe"
	"github.com/quillwork/worksheets-backend/pkg/config"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/quillwork/worksheets-backend/pkg/metrics"
	"github.com/quillwork/worksheets-backend/pkg/redis"
	"github.com/quillwork/worksheets-backend/pkg/stripe"
)

// FilesPrefix is where locally stored artifacts are served.
const FilesPrefix = "/files/"

// RateLimiter is the redis fixed-window limiter used on export creation.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies is everything the router wires into controllers. Billing and
// webhook routes are only mounted when Stripe is configured.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    *redis.Client
	Limiter  RateLimiter
	Exports  exports.Service
	Files    http.Handler
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics

	Subscriptions billingcontrollers.SubscriptionReader
	Billing       billingcontrollers.SessionService

	StripeClient  *stripe.Client
	StripeWebhook *stripewebhook.Service
	WebhookGuard  *stripewebhook.EventGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readinessChecks(deps), logg))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if deps.Files != nil {
		r.Handle(FilesPrefix+"*", deps.Files)
	}

	exportPolicy := middleware.RateLimitPolicy{
		Name:   "export",
		Window: cfg.Export.RateLimitWindow,
		Limit:  cfg.Export.RateLimitMax,
	}

	r.Route("/api", func(r chi.Router) {
		if deps.StripeWebhook != nil {
			r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.WebhookGuard, logg))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.With(middleware.RateLimit(exportPolicy, deps.Limiter, logg)).
				Post("/export", controllers.CreateExport(deps.Exports, logg))
			r.Get("/export", controllers.ExportQuota(deps.Exports, logg))
			r.Get("/exports", controllers.ExportHistory(deps.Exports, logg))

			r.Route("/billing", func(r chi.Router) {
				r.Get("/subscription", billingcontrollers.CurrentSubscription(deps.Subscriptions, logg))
				if deps.Billing != nil {
					r.Post("/checkout", billingcontrollers.Checkout(deps.Billing, logg))
					r.Post("/portal", billingcontrollers.Portal(deps.Billing, logg))
				}
			})
		})
	})

	return r
}

func readinessChecks(deps Dependencies) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	return checks
}
