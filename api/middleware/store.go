package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/api/responses"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
)

const (
	storeIDHeader = "X-Store-Id"
	actorIDHeader = "X-Actor-Id"
)

// StoreContext resolves the tenant from the X-Store-Id header and rejects
// requests without one. Routes mounted behind it can assume a valid store id.
func StoreContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(storeIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Store-Id header required"))
				return
			}
			storeID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Store-Id must be a UUID"))
				return
			}

			ctx := WithStoreID(r.Context(), storeID.String())
			if logg != nil {
				ctx = logg.WithStoreID(ctx, storeID.String())
			}

			if actor := strings.TrimSpace(r.Header.Get(actorIDHeader)); actor != "" {
				if actorID, parseErr := uuid.Parse(actor); parseErr == nil {
					ctx = WithActorID(ctx, actorID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
