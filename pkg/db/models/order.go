package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/enums"
	"github.com/wovera/storefront-backend/pkg/types"
)

// Order is the durable order aggregate. Status and fulfillment fields are
// owned by the order state machine; payment fields are owned by payment
// reconciliation. Both append to the shared status history.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID       uuid.UUID           `gorm:"column:store_id;type:uuid;not null;uniqueIndex:ux_orders_store_number"`
	OrderNumber   string              `gorm:"column:order_number;not null;uniqueIndex:ux_orders_store_number"`
	CustomerID    *uuid.UUID          `gorm:"column:customer_id;type:uuid"`
	Channel       enums.OrderChannel  `gorm:"column:channel;type:text;not null;default:'storefront'"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`

	SubtotalCents int `gorm:"column:subtotal_cents;not null"`
	DiscountCents int `gorm:"column:discount_cents;not null;default:0"`
	ShippingCents int `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents      int `gorm:"column:tax_cents;not null;default:0"`
	TotalCents    int `gorm:"column:total_cents;not null"`

	ShippingAddress types.Address `gorm:"column:shipping_address;type:jsonb;serializer:json"`

	FulfillmentCarrier  *string    `gorm:"column:fulfillment_carrier"`
	TrackingNumber      *string    `gorm:"column:tracking_number"`
	TrackingURL         *string    `gorm:"column:tracking_url"`
	ShippedAt           *time.Time `gorm:"column:shipped_at"`
	DeliveredAt         *time.Time `gorm:"column:delivered_at"`
	PaidAt              *time.Time `gorm:"column:paid_at"`
	RefundedAt          *time.Time `gorm:"column:refunded_at"`
	CancelledAt         *time.Time `gorm:"column:cancelled_at"`
	CancelReason        *string    `gorm:"column:cancel_reason"`
	PaymentTransactionID *uuid.UUID `gorm:"column:payment_transaction_id;type:uuid"`

	// Version guards concurrent writers; every update must match and bump it.
	Version int `gorm:"column:version;not null;default:1"`

	Items   []OrderLineItem      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
