package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/quillwork/worksheets-backend/api/middleware"
	"github.com/quillwork/worksheets-backend/api/responses"
	"github.com/quillwork/worksheets-backend/api/validators"
	"github.com/quillwork/worksheets-backend/internal/exports"
	"github.com/quillwork/worksheets-backend/internal/quota"
	"github.com/quillwork/worksheets-backend/internal/usage"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/quillwork/worksheets-backend/pkg/pagination"
)

const (
	maxTitleLength        = 200
	maxInstructionsLength = 2000
)

type exportRequest struct {
	Configuration json.RawMessage `json:"configuration" validate:"required"`
	Title         string          `json:"title" validate:"required,max=200"`
	Subtitle      string          `json:"subtitle" validate:"omitempty,max=200"`
	Instructions  string          `json:"instructions" validate:"omitempty,max=2000"`
}

type exportResponse struct {
	Success  bool        `json:"success"`
	Cached   bool        `json:"cached"`
	URLs     usage.URLs  `json:"urls"`
	ExportID uuid.UUID   `json:"exportId"`
	Quota    *quota.View `json:"quota,omitempty"`
}

// CreateExport handles POST /api/export.
func CreateExport(svc exports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "export service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		var req exportRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Export(ctx, userID, exports.Request{
			Configuration: req.Configuration,
			Title:         validators.SanitizeString(req.Title, maxTitleLength),
			Subtitle:      validators.SanitizeString(req.Subtitle, maxTitleLength),
			Instructions:  validators.SanitizeString(req.Instructions, maxInstructionsLength),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch result.Outcome {
		case exports.OutcomeDenied:
			var view quota.View
			if result.Quota != nil {
				view = result.Quota.View()
			}
			responses.WritePaywall(w, view)
		case exports.OutcomeCached:
			responses.WriteSuccess(w, exportResponse{
				Success:  true,
				Cached:   true,
				URLs:     result.URLs,
				ExportID: result.ExportID,
			})
		default:
			resp := exportResponse{
				Success:  true,
				URLs:     result.URLs,
				ExportID: result.ExportID,
			}
			if result.Quota != nil {
				view := result.Quota.View()
				resp.Quota = &view
			}
			responses.WriteSuccess(w, resp)
		}
	}
}

// ExportQuota handles GET /api/export. It never records usage.
func ExportQuota(svc exports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "export service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		decision, err := svc.Status(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision.View())
	}
}

// ExportHistory handles GET /api/exports.
func ExportHistory(svc exports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "export service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity required"))
			return
		}

		params, err := pagination.FromQuery(r.URL.Query())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.History(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
