package billing

import (
	"context"
	"net/http"

	"github.com/quillwork/worksheets-backend/api/middleware"
	"github.com/quillwork/worksheets-backend/api/responses"
	"github.com/quillwork/worksheets-backend/api/validators"
	billingsvc "github.com/quillwork/worksheets-backend/internal/billing"
	"github.com/quillwork/worksheets-backend/internal/subscriptions"
	"github.com/quillwork/worksheets-backend/pkg/enums"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/logger"
)

// SessionService opens hosted Stripe pages for the caller.
type SessionService interface {
	CreateCheckoutSession(ctx context.Context, userID, email string, plan enums.SubscriptionPlan) (*billingsvc.SessionResult, error)
	CreatePortalSession(ctx context.Context, userID string) (*billingsvc.SessionResult, error)
}

// SubscriptionReader reports the caller's current plan.
type SubscriptionReader interface {
	Current(ctx context.Context, userID string) (*subscriptions.View, error)
}

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=basic pro premium"`
}

type sessionResponse struct {
	URL string `json:"url"`
}

// CurrentSubscription handles GET /api/billing/subscription.
func CurrentSubscription(svc SubscriptionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		view, err := svc.Current(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Checkout handles POST /api/billing/checkout.
func Checkout(svc SessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		plan, err := enums.ParseSubscriptionPlan(req.Plan)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan"))
			return
		}

		session, err := svc.CreateCheckoutSession(ctx, userID, middleware.EmailFromContext(ctx), plan)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionResponse{URL: session.URL})
	}
}

// Portal handles POST /api/billing/portal.
func Portal(svc SessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		session, err := svc.CreatePortalSession(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionResponse{URL: session.URL})
	}
}

func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
		return "", false
	}
	return userID, true
}
