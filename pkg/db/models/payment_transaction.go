package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/enums"
)

// PaymentTransaction records one payment attempt against a provider.
// At most one transaction per order/provider pair ever reaches a terminal
// status; the version column guards concurrent webhook and verify writers.
type PaymentTransaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID          uuid.UUID               `gorm:"column:store_id;type:uuid;not null;index"`
	OrderID          uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Provider         string                  `gorm:"column:provider;not null;uniqueIndex:ux_payment_txn_provider_ref"`
	ProviderTxnID    string                  `gorm:"column:provider_txn_id;not null;uniqueIndex:ux_payment_txn_provider_ref"`
	AmountCents      int                     `gorm:"column:amount_cents;not null"`
	Status           enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'initiated'"`
	InitiatedAt      time.Time               `gorm:"column:initiated_at;not null"`
	CompletedAt      *time.Time              `gorm:"column:completed_at"`
	FailedAt         *time.Time              `gorm:"column:failed_at"`
	RefundedAt       *time.Time              `gorm:"column:refunded_at"`
	Version          int                     `gorm:"column:version;not null;default:1"`
	Events           []PaymentTransactionEvent `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
