package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/api/responses"
	"github.com/wovera/storefront-backend/api/validators"
	"github.com/wovera/storefront-backend/internal/logistics"
	"github.com/wovera/storefront-backend/internal/logistics/providers"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/types"
)

type createShipmentRequest struct {
	OrderID         uuid.UUID     `json:"order_id" validate:"required"`
	Provider        string        `json:"provider,omitempty"`
	PickupAddress   types.Address `json:"pickup_address" validate:"required"`
	DeliveryAddress types.Address `json:"delivery_address" validate:"required"`
	PackageDesc     string        `json:"package_desc,omitempty"`
	WeightGrams     int           `json:"weight_grams" validate:"required,min=1"`
	CODAmount       string        `json:"cod_amount,omitempty"`
}

// CreateShipment books a consignment with the carrier for an order.
func CreateShipment(tracker logistics.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createShipmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		codCents, err := optionalMoney(req.CODAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cod amount"))
			return
		}

		shipment, err := tracker.CreateShipment(r.Context(), logistics.CreateShipmentInput{
			StoreID:         storeID,
			OrderID:         req.OrderID,
			Provider:        req.Provider,
			PickupAddress:   req.PickupAddress,
			DeliveryAddress: req.DeliveryAddress,
			PackageDesc:     req.PackageDesc,
			WeightGrams:     req.WeightGrams,
			CODAmountCents:  codCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toShipmentResponse(shipment))
	}
}

func GetShipment(tracker logistics.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDParam(chi.URLParam(r, "shipmentID"), "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := tracker.Get(r.Context(), storeID, shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toShipmentResponse(shipment))
	}
}

// ListOrderShipments returns all shipments booked for an order.
func ListOrderShipments(repo logistics.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderID"), "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipments, err := repo.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := make([]shipmentResponse, 0, len(shipments))
		for i := range shipments {
			if shipments[i].StoreID != storeID {
				continue
			}
			resp = append(resp, toShipmentResponse(&shipments[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

func CancelShipment(tracker logistics.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDParam(chi.URLParam(r, "shipmentID"), "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := tracker.Cancel(r.Context(), storeID, shipmentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

// CollectCOD records manual cash collection on a delivered COD shipment
// and marks the order paid. A second call reports already processed.
func CollectCOD(tracker logistics.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDParam(chi.URLParam(r, "shipmentID"), "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := tracker.CollectCOD(r.Context(), storeID, shipmentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "collected"})
	}
}

type trackingResponse struct {
	ConsignmentID string                  `json:"consignment_id"`
	Status        string                  `json:"status"`
	Checkpoints   []shipmentEventResponse `json:"checkpoints"`
}

// ShipmentTracking proxies the carrier's live tracking timeline.
func ShipmentTracking(tracker logistics.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDParam(chi.URLParam(r, "shipmentID"), "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		info, err := tracker.GetTracking(r.Context(), storeID, shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := trackingResponse{
			ConsignmentID: info.ConsignmentID,
			Status:        info.Status.String(),
			Checkpoints:   make([]shipmentEventResponse, 0, len(info.Checkpoints)),
		}
		for _, cp := range info.Checkpoints {
			resp.Checkpoints = append(resp.Checkpoints, shipmentEventResponse{
				Status:      cp.Status.String(),
				Description: cp.Description,
				Location:    cp.Location,
				OccurredAt:  cp.OccurredAt,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

type rateRequest struct {
	Provider        string        `json:"provider,omitempty"`
	PickupAddress   types.Address `json:"pickup_address" validate:"required"`
	DeliveryAddress types.Address `json:"delivery_address" validate:"required"`
	WeightGrams     int           `json:"weight_grams" validate:"required,min=1"`
	CODAmount       string        `json:"cod_amount,omitempty"`
}

type rateResponse struct {
	Carrier      string `json:"carrier"`
	ServiceLevel string `json:"service_level"`
	Cost         string `json:"cost"`
	ETADays      int    `json:"eta_days"`
	QuotedAt     string `json:"quoted_at"`
}

// QuoteShippingRate prices a prospective shipment with the carrier.
func QuoteShippingRate(tracker logistics.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := storeIDFromRequest(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		codCents, err := optionalMoney(req.CODAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cod amount"))
			return
		}

		quote, err := tracker.CalculateRate(r.Context(), req.Provider, providers.RateRequest{
			PickupAddress:   req.PickupAddress,
			DeliveryAddress: req.DeliveryAddress,
			WeightGrams:     req.WeightGrams,
			CODAmountCents:  codCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, rateResponse{
			Carrier:      quote.Carrier,
			ServiceLevel: quote.ServiceLevel,
			Cost:         money(quote.CostCents),
			ETADays:      quote.ETADays,
			QuotedAt:     time.Now().UTC().Format(time.RFC3339),
		})
	}
}
