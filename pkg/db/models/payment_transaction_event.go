package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/types"
)

// PaymentTransactionEvent is an append-only audit row for every provider
// notification we accepted, including ones that arrived after the
// transaction went terminal.
type PaymentTransactionEvent struct {
	ID            uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID uuid.UUID     `gorm:"column:transaction_id;type:uuid;not null;index"`
	Provider      string        `gorm:"column:provider;not null"`
	EventType     string        `gorm:"column:event_type;not null"`
	Status        string        `gorm:"column:status;not null"`
	Payload       types.JSONMap `gorm:"column:payload;type:jsonb;serializer:json"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime"`
}
