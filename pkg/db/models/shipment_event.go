package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/types"
)

// ShipmentEvent is the append-only tracking timeline for a shipment.
type ShipmentEvent struct {
	ID          uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShipmentID  uuid.UUID     `gorm:"column:shipment_id;type:uuid;not null;index"`
	Status      string        `gorm:"column:status;not null"`
	Description string        `gorm:"column:description"`
	Location    string        `gorm:"column:location"`
	Payload     types.JSONMap `gorm:"column:payload;type:jsonb;serializer:json"`
	OccurredAt  time.Time     `gorm:"column:occurred_at;not null"`
	CreatedAt   time.Time     `gorm:"column:created_at;autoCreateTime"`
}
