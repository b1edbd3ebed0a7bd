package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/api/middleware"
	"github.com/wovera/storefront-backend/api/responses"
	"github.com/wovera/storefront-backend/api/validators"
	"github.com/wovera/storefront-backend/internal/catalog"
	"github.com/wovera/storefront-backend/internal/stock"
	"github.com/wovera/storefront-backend/pkg/db/models"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
)

type productResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	Price     string    `json:"price"`
	ImageURL  *string   `json:"image_url,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toProductResponse(p models.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		Price:     money(p.PriceCents),
		ImageURL:  p.ImageURL,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}

// ListProducts returns the store catalog, optionally only active rows.
func ListProducts(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		activeOnly, err := validators.ParseQueryBool(r, "activeOnly")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		products, err := svc.List(r.Context(), storeID, activeOnly, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := make([]productResponse, 0, len(products))
		for _, p := range products {
			resp = append(resp, toProductResponse(p))
		}
		responses.WriteSuccess(w, resp)
	}
}

func GetProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(chi.URLParam(r, "productID"), "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Get(r.Context(), storeID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toProductResponse(*product))
	}
}

type stockItemResponse struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	OnHand    int        `json:"on_hand"`
	Reserved  int        `json:"reserved"`
	Available int        `json:"available"`
}

// StockAvailability reports on-hand and reserved counts for the requested
// products, comma-separated in the product_ids query parameter.
func StockAvailability(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw := strings.TrimSpace(r.URL.Query().Get("product_ids"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product_ids query parameter required"))
			return
		}
		var productIDs []uuid.UUID
		for _, part := range strings.Split(raw, ",") {
			id, parseErr := uuid.Parse(strings.TrimSpace(part))
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product_ids must be UUIDs"))
				return
			}
			productIDs = append(productIDs, id)
		}

		items, err := ledger.Availability(r.Context(), storeID, productIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := make([]stockItemResponse, 0, len(items))
		for _, item := range items {
			resp = append(resp, stockItemResponse{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				OnHand:    item.OnHandQty,
				Reserved:  item.ReservedQty,
				Available: item.AvailableQty(),
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

type restockRequest struct {
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Delta     int        `json:"delta" validate:"required"`
}

// Restock adjusts on-hand stock for a product. Negative deltas write
// down inventory but never below the reserved count.
func Restock(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(chi.URLParam(r, "productID"), "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := ledger.Restock(r.Context(), storeID, productID, req.VariantID, req.Delta); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

func storeIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.StoreIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "store context missing")
	}
	storeID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id")
	}
	return storeID, nil
}

func actorIDFromRequest(r *http.Request) *uuid.UUID {
	raw := middleware.ActorIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	actorID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &actorID
}
