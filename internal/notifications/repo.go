package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/pkg/db/models"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

// Repository persists dashboard notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, storeID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, storeID, notificationID uuid.UUID, now time.Time) (bool, error)
	MarkAllRead(ctx context.Context, storeID uuid.UUID, now time.Time) (int64, error)
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

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	if notification == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification is required")
	}
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create notification")
	}
	return nil
}

func (r *repository) List(ctx context.Context, storeID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at DESC")
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var notifications []models.Notification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list notifications")
	}
	return notifications, nil
}

func (r *repository) MarkRead(ctx context.Context, storeID, notificationID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("store_id = ? AND id = ? AND read_at IS NULL", storeID, notificationID).
		Update("read_at", now)
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, result.Error, "mark notification read")
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkAllRead(ctx context.Context, storeID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("store_id = ? AND read_at IS NULL", storeID).
		Update("read_at", now)
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodePersistence, result.Error, "mark notifications read")
	}
	return result.RowsAffected, nil
}
