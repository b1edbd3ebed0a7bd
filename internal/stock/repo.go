package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/pkg/db/models"
)

// Repository manages persistence for stock items. The mutating methods
// are single guarded UPDATE statements so concurrent callers can never
// drive reserved_qty below zero or above on_hand_qty.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID) (*models.StockItem, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) ([]models.StockItem, error)
	Upsert(ctx context.Context, item *models.StockItem) error
	ReserveQty(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error)
	ReleaseQty(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error)
	CommitQty(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error)
	AdjustOnHand(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, delta int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID) (*models.StockItem, error) {
	var item models.StockItem
	q := r.db.WithContext(ctx).Where("store_id = ? AND product_id = ?", storeID, productID)
	q = scopeVariant(q, variantID)
	if err := q.First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) ([]models.StockItem, error) {
	var items []models.StockItem
	q := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	if len(productIDs) > 0 {
		q = q.Where("product_id IN ?", productIDs)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Upsert(ctx context.Context, item *models.StockItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// ReserveQty moves qty from available into reserved. Returns false when
// the guard fails, meaning not enough unreserved stock remained.
func (r *repository) ReserveQty(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error) {
	return r.guardedExec(ctx, variantID,
		`UPDATE stock_items
		SET reserved_qty = reserved_qty + @qty,
			updated_at = CURRENT_TIMESTAMP
		WHERE store_id = @store AND product_id = @product AND %s
			AND on_hand_qty - reserved_qty >= @qty`,
		map[string]any{"qty": qty, "store": storeID, "product": productID})
}

// ReleaseQty returns qty from reserved back to available.
func (r *repository) ReleaseQty(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error) {
	return r.guardedExec(ctx, variantID,
		`UPDATE stock_items
		SET reserved_qty = reserved_qty - @qty,
			updated_at = CURRENT_TIMESTAMP
		WHERE store_id = @store AND product_id = @product AND %s
			AND reserved_qty >= @qty`,
		map[string]any{"qty": qty, "store": storeID, "product": productID})
}

// CommitQty burns reserved stock on fulfillment: both on_hand and
// reserved drop by qty.
func (r *repository) CommitQty(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error) {
	return r.guardedExec(ctx, variantID,
		`UPDATE stock_items
		SET on_hand_qty = on_hand_qty - @qty,
			reserved_qty = reserved_qty - @qty,
			updated_at = CURRENT_TIMESTAMP
		WHERE store_id = @store AND product_id = @product AND %s
			AND reserved_qty >= @qty AND on_hand_qty >= @qty`,
		map[string]any{"qty": qty, "store": storeID, "product": productID})
}

// AdjustOnHand applies a restock or correction delta. Negative deltas
// cannot eat into reserved stock.
func (r *repository) AdjustOnHand(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, delta int) (bool, error) {
	return r.guardedExec(ctx, variantID,
		`UPDATE stock_items
		SET on_hand_qty = on_hand_qty + @delta,
			updated_at = CURRENT_TIMESTAMP
		WHERE store_id = @store AND product_id = @product AND %s
			AND on_hand_qty + @delta >= reserved_qty`,
		map[string]any{"delta": delta, "store": storeID, "product": productID})
}

func (r *repository) guardedExec(ctx context.Context, variantID *uuid.UUID, queryTmpl string, named map[string]any) (bool, error) {
	clause := "variant_id IS NULL"
	if variantID != nil {
		clause = "variant_id = @variant"
		named["variant"] = *variantID
	}
	res := r.db.WithContext(ctx).Exec(fmt.Sprintf(queryTmpl, clause), named)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func scopeVariant(q *gorm.DB, variantID *uuid.UUID) *gorm.DB {
	if variantID == nil {
		return q.Where("variant_id IS NULL")
	}
	return q.Where("variant_id = ?", *variantID)
}
