package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the per-store buyer record. Order stats are maintained by
// the checkout flow and are best-effort denormalizations.
type Customer struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID         uuid.UUID `gorm:"column:store_id;type:uuid;not null;uniqueIndex:ux_customers_store_phone"`
	Name            string    `gorm:"column:name;not null"`
	Phone           string    `gorm:"column:phone;not null;uniqueIndex:ux_customers_store_phone"`
	Email           string    `gorm:"column:email"`
	OrderCount      int       `gorm:"column:order_count;not null;default:0"`
	TotalSpentCents int64     `gorm:"column:total_spent_cents;not null;default:0"`
	LastOrderAt     *time.Time `gorm:"column:last_order_at"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
