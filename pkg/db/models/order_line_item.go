package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem snapshots a product at checkout time. Name, SKU and unit
// price are frozen copies; later catalog edits never touch them.
type OrderLineItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Name           string     `gorm:"column:name;not null"`
	SKU            string     `gorm:"column:sku;not null"`
	ImageURL       *string    `gorm:"column:image_url"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	Qty            int        `gorm:"column:qty;not null"`
	LineTotalCents int        `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
