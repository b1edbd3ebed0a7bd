package customers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/pkg/db/models"
)

// Repository manages persistence for customers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, storeID, customerID uuid.UUID) (*models.Customer, error)
	FindByPhone(ctx context.Context, storeID uuid.UUID, phone string) (*models.Customer, error)
	IncrementOrderStats(ctx context.Context, customerID uuid.UUID, spentCents int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a customer repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

func (r *repository) FindByID(ctx context.Context, storeID, customerID uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND id = ?", storeID, customerID).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindByPhone(ctx context.Context, storeID uuid.UUID, phone string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND phone = ?", storeID, phone).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) IncrementOrderStats(ctx context.Context, customerID uuid.UUID, spentCents int64) error {
	return r.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		Updates(map[string]any{
			"order_count":       gorm.Expr("order_count + 1"),
			"total_spent_cents": gorm.Expr("total_spent_cents + ?", spentCents),
			"last_order_at":     gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}
