package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wovera/storefront-backend/api/responses"
	"github.com/wovera/storefront-backend/api/validators"
	"github.com/wovera/storefront-backend/internal/payments"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
)

// GetTransaction returns one payment transaction with its audit trail.
func GetTransaction(repo payments.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txnID, err := validators.ParseUUIDParam(chi.URLParam(r, "transactionID"), "transactionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := repo.FindByID(r.Context(), storeID, txnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionResponse(txn))
	}
}

type verifyRequest struct {
	ExpectedAmount string `json:"expected_amount,omitempty"`
}

// VerifyTransaction reconciles a transaction against the provider's
// current view, settling it locally when the provider reports terminal.
func VerifyTransaction(engine payments.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txnID, err := validators.ParseUUIDParam(chi.URLParam(r, "transactionID"), "transactionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req verifyRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		var expected *int
		if req.ExpectedAmount != "" {
			cents, parseErr := parseMoney(req.ExpectedAmount)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid expected amount"))
				return
			}
			expected = &cents
		}

		txn, err := engine.Verify(r.Context(), storeID, txnID, expected)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionResponse(txn))
	}
}
