package models

import (
	"time"

	"github.com/google/uuid"
)

// StockItem tracks on-hand and reserved counts per store/product/variant.
// available = on_hand - reserved; reserved never exceeds on_hand.
type StockItem struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID     uuid.UUID  `gorm:"column:store_id;type:uuid;not null;uniqueIndex:ux_stock_store_product"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_stock_store_product"`
	VariantID   *uuid.UUID `gorm:"column:variant_id;type:uuid;uniqueIndex:ux_stock_store_product"`
	OnHandQty   int        `gorm:"column:on_hand_qty;not null;default:0"`
	ReservedQty int        `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableQty derives the sellable quantity.
func (s StockItem) AvailableQty() int {
	return s.OnHandQty - s.ReservedQty
}
