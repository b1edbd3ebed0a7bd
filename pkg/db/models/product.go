package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog record checkout snapshots prices from.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID    uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	SKU        string    `gorm:"column:sku;not null"`
	PriceCents int       `gorm:"column:price_cents;not null"`
	ImageURL   *string   `gorm:"column:image_url"`
	Active     bool      `gorm:"column:active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
