package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wovera/storefront-backend/pkg/db/models"
)

var centsFactor = decimal.NewFromInt(100)

// money renders a cents amount as a major-unit decimal string, "102.00".
func money(cents int) string {
	return decimal.NewFromInt(int64(cents)).Div(centsFactor).StringFixed(2)
}

// parseMoney converts a major-unit decimal string into cents.
func parseMoney(value string) (int, error) {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	return int(parsed.Mul(centsFactor).Round(0).IntPart()), nil
}

type lineItemResponse struct {
	ID        uuid.UUID  `json:"id"`
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Name      string     `json:"name"`
	SKU       string     `json:"sku"`
	ImageURL  *string    `json:"image_url,omitempty"`
	UnitPrice string     `json:"unit_price"`
	Qty       int        `json:"qty"`
	LineTotal string     `json:"line_total"`
}

type historyResponse struct {
	Status    string     `json:"status"`
	Note      *string    `json:"note,omitempty"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type orderResponse struct {
	ID              uuid.UUID          `json:"id"`
	OrderNumber     string             `json:"order_number"`
	CustomerID      *uuid.UUID         `json:"customer_id,omitempty"`
	Channel         string             `json:"channel"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"payment_status"`
	PaymentMethod   string             `json:"payment_method"`
	Subtotal        string             `json:"subtotal"`
	Discount        string             `json:"discount"`
	Shipping        string             `json:"shipping"`
	Total           string             `json:"total"`
	ShippingAddress any                `json:"shipping_address"`
	Carrier         *string            `json:"carrier,omitempty"`
	TrackingNumber  *string            `json:"tracking_number,omitempty"`
	TrackingURL     *string            `json:"tracking_url,omitempty"`
	PaidAt          *time.Time         `json:"paid_at,omitempty"`
	ShippedAt       *time.Time         `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time         `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason    *string            `json:"cancel_reason,omitempty"`
	Items           []lineItemResponse `json:"items,omitempty"`
	History         []historyResponse  `json:"history,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		Channel:         order.Channel.String(),
		Status:          order.Status.String(),
		PaymentStatus:   order.PaymentStatus.String(),
		PaymentMethod:   order.PaymentMethod.String(),
		Subtotal:        money(order.SubtotalCents),
		Discount:        money(order.DiscountCents),
		Shipping:        money(order.ShippingCents),
		Total:           money(order.TotalCents),
		ShippingAddress: order.ShippingAddress,
		Carrier:         order.FulfillmentCarrier,
		TrackingNumber:  order.TrackingNumber,
		TrackingURL:     order.TrackingURL,
		PaidAt:          order.PaidAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		CancelReason:    order.CancelReason,
		CreatedAt:       order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, lineItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			SKU:       item.SKU,
			ImageURL:  item.ImageURL,
			UnitPrice: money(item.UnitPriceCents),
			Qty:       item.Qty,
			LineTotal: money(item.LineTotalCents),
		})
	}
	for _, entry := range order.History {
		resp.History = append(resp.History, historyResponse{
			Status:    entry.Status,
			Note:      entry.Note,
			ActorID:   entry.ActorID,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}

type shipmentEventResponse struct {
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type shipmentResponse struct {
	ID             uuid.UUID               `json:"id"`
	OrderID        uuid.UUID               `json:"order_id"`
	Provider       string                  `json:"provider"`
	ConsignmentID  string                  `json:"consignment_id"`
	TrackingNumber string                  `json:"tracking_number,omitempty"`
	TrackingURL    string                  `json:"tracking_url,omitempty"`
	Status         string                  `json:"status"`
	Cost           string                  `json:"cost"`
	CODAmount      string                  `json:"cod_amount,omitempty"`
	CODCollected   bool                    `json:"cod_collected"`
	CODSettledAt   *time.Time              `json:"cod_settled_at,omitempty"`
	PickedUpAt     *time.Time              `json:"picked_up_at,omitempty"`
	DeliveredAt    *time.Time              `json:"delivered_at,omitempty"`
	CancelledAt    *time.Time              `json:"cancelled_at,omitempty"`
	Events         []shipmentEventResponse `json:"events,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

func toShipmentResponse(shipment *models.Shipment) shipmentResponse {
	resp := shipmentResponse{
		ID:             shipment.ID,
		OrderID:        shipment.OrderID,
		Provider:       shipment.Provider,
		ConsignmentID:  shipment.ConsignmentID,
		TrackingNumber: shipment.TrackingNumber,
		TrackingURL:    shipment.TrackingURL,
		Status:         shipment.Status.String(),
		Cost:           money(shipment.CostCents),
		CODCollected:   shipment.CODCollected,
		CODSettledAt:   shipment.CODSettledAt,
		PickedUpAt:     shipment.PickedUpAt,
		DeliveredAt:    shipment.DeliveredAt,
		CancelledAt:    shipment.CancelledAt,
		CreatedAt:      shipment.CreatedAt,
	}
	if shipment.IsCOD() {
		resp.CODAmount = money(shipment.CODAmountCents)
	}
	for _, event := range shipment.Events {
		resp.Events = append(resp.Events, shipmentEventResponse{
			Status:      event.Status,
			Description: event.Description,
			Location:    event.Location,
			OccurredAt:  event.OccurredAt,
		})
	}
	return resp
}

type transactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       uuid.UUID  `json:"order_id"`
	Provider      string     `json:"provider"`
	ProviderTxnID string     `json:"provider_txn_id"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	InitiatedAt   time.Time  `json:"initiated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
}

func toTransactionResponse(txn *models.PaymentTransaction) transactionResponse {
	return transactionResponse{
		ID:            txn.ID,
		OrderID:       txn.OrderID,
		Provider:      txn.Provider,
		ProviderTxnID: txn.ProviderTxnID,
		Amount:        money(txn.AmountCents),
		Status:        txn.Status.String(),
		InitiatedAt:   txn.InitiatedAt,
		CompletedAt:   txn.CompletedAt,
		FailedAt:      txn.FailedAt,
		RefundedAt:    txn.RefundedAt,
	}
}
