package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderCounter holds the per-store order number sequence. Incremented
// atomically so concurrent checkouts never mint the same number.
type OrderCounter struct {
	StoreID   uuid.UUID `gorm:"column:store_id;type:uuid;primaryKey"`
	NextSeq   int64     `gorm:"column:next_seq;not null;default:1"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
