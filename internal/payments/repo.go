package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

// StatusUpdate is the mutable slice of a payment transaction. Nil fields
// are left untouched.
type StatusUpdate struct {
	Status      enums.TransactionStatus
	CompletedAt *time.Time
	FailedAt    *time.Time
	RefundedAt  *time.Time
}

// Repository persists payment transactions and their audit events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	FindByID(ctx context.Context, storeID, txnID uuid.UUID) (*models.PaymentTransaction, error)
	FindByProviderRef(ctx context.Context, provider, providerTxnID string) (*models.PaymentTransaction, error)
	FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error)
	UpdateVersioned(ctx context.Context, txnID uuid.UUID, version int, update StatusUpdate) (bool, error)
	AppendEvent(ctx context.Context, event *models.PaymentTransactionEvent) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	if txn == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction is required")
	}
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create payment transaction")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, storeID, txnID uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND id = ?", storeID, txnID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find payment transaction")
	}
	return &txn, nil
}

func (r *repository) FindByProviderRef(ctx context.Context, provider, providerTxnID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_txn_id = ?", provider, providerTxnID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find payment transaction by provider ref")
	}
	return &txn, nil
}

func (r *repository) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("initiated_at DESC").
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find payment transaction by order")
	}
	return &txn, nil
}

// UpdateVersioned applies the status change only when the stored version
// still matches; a false return means a concurrent writer got there first.
func (r *repository) UpdateVersioned(ctx context.Context, txnID uuid.UUID, version int, update StatusUpdate) (bool, error) {
	changes := map[string]any{
		"status":  update.Status,
		"version": gorm.Expr("version + 1"),
	}
	if update.CompletedAt != nil {
		changes["completed_at"] = *update.CompletedAt
	}
	if update.FailedAt != nil {
		changes["failed_at"] = *update.FailedAt
	}
	if update.RefundedAt != nil {
		changes["refunded_at"] = *update.RefundedAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND version = ?", txnID, version).
		Updates(changes)
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, result.Error, "update payment transaction")
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AppendEvent(ctx context.Context, event *models.PaymentTransactionEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append payment transaction event")
	}
	return nil
}
