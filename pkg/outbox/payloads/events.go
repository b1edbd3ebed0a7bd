package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order accepted at checkout.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	StoreID       uuid.UUID           `json:"store_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    *uuid.UUID          `json:"customer_id,omitempty"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalCents    int                 `json:"total_cents"`
	ItemCount     int                 `json:"item_count"`
}

// OrderStatusChangedEvent reports a lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	StoreID    uuid.UUID         `json:"store_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ChangedAt  time.Time         `json:"changed_at"`
	Note       string            `json:"note,omitempty"`
}

// OrderPaymentUpdatedEvent reports payment status movement on an order.
type OrderPaymentUpdatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	StoreID       uuid.UUID           `json:"store_id"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Provider      string              `json:"provider,omitempty"`
	AmountCents   int                 `json:"amount_cents"`
}

// ShipmentUpdatedEvent reports a tracking status change on a shipment.
type ShipmentUpdatedEvent struct {
	ShipmentID  uuid.UUID            `json:"shipment_id"`
	OrderID     uuid.UUID            `json:"order_id"`
	StoreID     uuid.UUID            `json:"store_id"`
	Provider    string               `json:"provider"`
	Status      enums.ShipmentStatus `json:"status"`
	Description string               `json:"description,omitempty"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// ShipmentCODSettledEvent is emitted once per shipment when cash is collected.
type ShipmentCODSettledEvent struct {
	ShipmentID  uuid.UUID `json:"shipment_id"`
	OrderID     uuid.UUID `json:"order_id"`
	StoreID     uuid.UUID `json:"store_id"`
	AmountCents int       `json:"amount_cents"`
	SettledAt   time.Time `json:"settled_at"`
}
