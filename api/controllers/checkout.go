package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/api/responses"
	"github.com/wovera/storefront-backend/api/validators"
	checkoutsvc "github.com/wovera/storefront-backend/internal/checkout"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/types"
)

type checkoutItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Qty       int        `json:"qty" validate:"required,min=1"`
}

type checkoutRequest struct {
	Channel         string                `json:"channel,omitempty"`
	CustomerName    string                `json:"customer_name" validate:"required"`
	CustomerPhone   string                `json:"customer_phone" validate:"required"`
	CustomerEmail   string                `json:"customer_email,omitempty" validate:"omitempty,email"`
	ShippingAddress types.Address         `json:"shipping_address" validate:"required"`
	PaymentMethod   string                `json:"payment_method" validate:"required"`
	Items           []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	Shipping        string                `json:"shipping,omitempty"`
	Discount        string                `json:"discount,omitempty"`
}

// Checkout accepts a storefront order submission. Monetary fields travel
// as major-unit decimal strings and are converted to cents at this edge.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		var channel enums.OrderChannel
		if req.Channel != "" {
			channel, err = enums.ParseOrderChannel(req.Channel)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel"))
				return
			}
		}

		shippingCents, err := optionalMoney(req.Shipping)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping amount"))
			return
		}
		discountCents, err := optionalMoney(req.Discount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount amount"))
			return
		}

		input := checkoutsvc.CreateOrderInput{
			StoreID:         storeID,
			Channel:         channel,
			CustomerName:    req.CustomerName,
			CustomerPhone:   req.CustomerPhone,
			CustomerEmail:   req.CustomerEmail,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   method,
			ShippingCents:   shippingCents,
			DiscountCents:   discountCents,
			ActorID:         actorIDFromRequest(r),
		}
		for _, item := range req.Items {
			input.Items = append(input.Items, checkoutsvc.ItemInput{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Qty:       item.Qty,
			})
		}

		order, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(order))
	}
}

func optionalMoney(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return parseMoney(value)
}
