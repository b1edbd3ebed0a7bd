package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatusHistory is the append-only log of order status and payment
// status changes. Rows are never updated or deleted.
type OrderStatusHistory struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	Status    string     `gorm:"column:status;not null"`
	Note      *string    `gorm:"column:note"`
	ActorID   *uuid.UUID `gorm:"column:actor_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
