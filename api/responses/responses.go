package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/logger"
	"github.com/quillwork/worksheets-backend/pkg/types"
)

const genericFailureMessage = "Something went wrong. Please try again."

// WriteJSON writes payload as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

func WriteSuccess(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, payload)
}

// WritePaywall writes the 403 quota-exceeded body carrying the decision.
func WritePaywall(w http.ResponseWriter, quota any) {
	writeJSON(w, http.StatusForbidden, types.PaywallEnvelope{
		Error:   pkgerrors.MetadataFor(pkgerrors.CodeQuotaExceeded).PublicMessage,
		Paywall: true,
		Quota:   quota,
	})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	payload := types.ErrorEnvelope{
		Error: meta.PublicMessage,
		Code:  string(typed.Code()),
	}
	switch {
	case meta.MessageAllowed && typed.Message() != "":
		payload.Message = typed.Message()
	case meta.HTTPStatus >= http.StatusInternalServerError:
		payload.Message = genericFailureMessage
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Details = details
		}
	}

	if logg != nil {
		fields := pkgerrors.Dump(err)
		fields["status"] = meta.HTTPStatus
		ctx = logg.WithFields(ctx, fields)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.error")
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
