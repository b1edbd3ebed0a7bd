package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/wovera/storefront-backend/pkg/db"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
)

// ListFilter narrows order listings.
type ListFilter struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	CustomerID    *uuid.UUID
	Limit         int
	Offset        int
}

// StatusUpdate carries the column changes applied with a version guard.
type StatusUpdate struct {
	Status               *enums.OrderStatus
	PaymentStatus        *enums.PaymentStatus
	PaidAt               *time.Time
	RefundedAt           *time.Time
	ShippedAt            *time.Time
	DeliveredAt          *time.Time
	CancelledAt          *time.Time
	CancelReason         *string
	Carrier              *string
	TrackingNumber       *string
	TrackingURL          *string
	PaymentTransactionID *uuid.UUID
}

// Repository manages persistence for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, storeID uuid.UUID, orderNumber string) (*models.Order, error)
	List(ctx context.Context, storeID uuid.UUID, filter ListFilter) ([]models.Order, error)
	UpdateVersioned(ctx context.Context, orderID uuid.UUID, version int, update StatusUpdate) (bool, error)
	AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	NextOrderNumber(ctx context.Context, storeID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("store_id = ? AND id = ?", storeID, orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNumber(ctx context.Context, storeID uuid.UUID, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("store_id = ? AND order_number = ?", storeID, orderNumber).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, storeID uuid.UUID, filter ListFilter) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.PaymentStatus != nil {
		q = q.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var orders []models.Order
	err := q.Preload("Items").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateVersioned applies the update only when the caller still holds the
// current version; the version bumps on success. A false return means a
// concurrent writer got there first.
func (r *repository) UpdateVersioned(ctx context.Context, orderID uuid.UUID, version int, update StatusUpdate) (bool, error) {
	changes := map[string]any{
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	}
	if update.Status != nil {
		changes["status"] = *update.Status
	}
	if update.PaymentStatus != nil {
		changes["payment_status"] = *update.PaymentStatus
	}
	if update.PaidAt != nil {
		changes["paid_at"] = *update.PaidAt
	}
	if update.RefundedAt != nil {
		changes["refunded_at"] = *update.RefundedAt
	}
	if update.ShippedAt != nil {
		changes["shipped_at"] = *update.ShippedAt
	}
	if update.DeliveredAt != nil {
		changes["delivered_at"] = *update.DeliveredAt
	}
	if update.CancelledAt != nil {
		changes["cancelled_at"] = *update.CancelledAt
	}
	if update.CancelReason != nil {
		changes["cancel_reason"] = *update.CancelReason
	}
	if update.Carrier != nil {
		changes["fulfillment_carrier"] = *update.Carrier
	}
	if update.TrackingNumber != nil {
		changes["tracking_number"] = *update.TrackingNumber
	}
	if update.TrackingURL != nil {
		changes["tracking_url"] = *update.TrackingURL
	}
	if update.PaymentTransactionID != nil {
		changes["payment_transaction_id"] = *update.PaymentTransactionID
	}

	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND version = ?", orderID, version).
		Updates(changes)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// NextOrderNumber increments the per-store sequence. The guarded UPDATE
// keeps concurrent checkouts from minting the same number; the first
// order for a store seeds the counter row.
func (r *repository) NextOrderNumber(ctx context.Context, storeID uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)

	res := db.Exec(
		`UPDATE order_counters SET next_seq = next_seq + 1, updated_at = CURRENT_TIMESTAMP WHERE store_id = ?`,
		storeID)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		counter := models.OrderCounter{StoreID: storeID, NextSeq: 2}
		if err := db.Create(&counter).Error; err != nil {
			if !dbpkg.IsUniqueViolation(err, "order_counters_pkey") {
				return 0, err
			}
			// lost the first-order race; claim the next slot instead
			retry := db.Exec(
				`UPDATE order_counters SET next_seq = next_seq + 1, updated_at = CURRENT_TIMESTAMP WHERE store_id = ?`,
				storeID)
			if retry.Error != nil {
				return 0, retry.Error
			}
		} else {
			return 1, nil
		}
	}

	var counter models.OrderCounter
	if err := db.Where("store_id = ?", storeID).First(&counter).Error; err != nil {
		return 0, err
	}
	return counter.NextSeq - 1, nil
}
