package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/enums"
	"github.com/wovera/storefront-backend/pkg/types"
)

// Shipment tracks one consignment with a logistics provider. COD fields
// are only populated for cash-on-delivery orders; CODCollected flips to
// true exactly once, either from a provider delivery event or a manual
// collection call.
type Shipment struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID       uuid.UUID            `gorm:"column:store_id;type:uuid;not null;index"`
	OrderID       uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	Provider      string               `gorm:"column:provider;not null;uniqueIndex:ux_shipments_provider_ref"`
	ConsignmentID string               `gorm:"column:consignment_id;not null;uniqueIndex:ux_shipments_provider_ref"`
	TrackingNumber string              `gorm:"column:tracking_number"`
	TrackingURL   string               `gorm:"column:tracking_url"`
	Status        enums.ShipmentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PickupAddress types.Address        `gorm:"column:pickup_address;type:jsonb;serializer:json"`
	DeliveryAddress types.Address      `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	PackageDesc   string               `gorm:"column:package_desc"`
	WeightGrams   int                  `gorm:"column:weight_grams;not null;default:0"`
	CostCents     int                  `gorm:"column:cost_cents;not null;default:0"`
	CODAmountCents int                 `gorm:"column:cod_amount_cents;not null;default:0"`
	CODCollected  bool                 `gorm:"column:cod_collected;not null;default:false"`
	CODSettledAt  *time.Time           `gorm:"column:cod_settled_at"`
	PickedUpAt    *time.Time           `gorm:"column:picked_up_at"`
	DeliveredAt   *time.Time           `gorm:"column:delivered_at"`
	CancelledAt   *time.Time           `gorm:"column:cancelled_at"`
	Events        []ShipmentEvent      `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shipment) IsCOD() bool {
	return s.CODAmountCents > 0
}
