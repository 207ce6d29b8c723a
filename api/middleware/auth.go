package middleware

import (
	"net/http"

	"github.com/quillwork/worksheets-backend/api/responses"
	"github.com/quillwork/worksheets-backend/api/validators"
	pkgAuth "github.com/quillwork/worksheets-backend/pkg/auth"
	"github.com/quillwork/worksheets-backend/pkg/config"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
	"github.com/quillwork/worksheets-backend/pkg/logger"
)

// Auth validates the identity provider's bearer token and seeds the request
// context with the caller's identity. Nothing downstream runs without one.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := validators.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID(), Email: claims.Email})
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
