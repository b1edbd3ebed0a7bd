package logistics

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

// StatusUpdate is the mutable tracking slice of a shipment. Nil fields
// are left untouched.
type StatusUpdate struct {
	Status      enums.ShipmentStatus
	PickedUpAt  *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// Repository persists shipments and their tracking timelines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, shipment *models.Shipment) error
	FindByID(ctx context.Context, storeID, shipmentID uuid.UUID) (*models.Shipment, error)
	FindByProviderRef(ctx context.Context, provider, consignmentID string) (*models.Shipment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error)
	UpdateStatus(ctx context.Context, shipmentID uuid.UUID, update StatusUpdate) error
	MarkCODCollected(ctx context.Context, shipmentID uuid.UUID, settledAt time.Time) (bool, error)
	AppendEvent(ctx context.Context, event *models.ShipmentEvent) error
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

func (r *repository) Create(ctx context.Context, shipment *models.Shipment) error {
	if shipment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipment is required")
	}
	if err := r.db.WithContext(ctx).Create(shipment).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create shipment")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, storeID, shipmentID uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Order("occurred_at ASC")
		}).
		Where("store_id = ? AND id = ?", storeID, shipmentID).
		First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find shipment")
	}
	return &shipment, nil
}

func (r *repository) FindByProviderRef(ctx context.Context, provider, consignmentID string) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND consignment_id = ?", provider, consignmentID).
		First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "find shipment by provider ref")
	}
	return &shipment, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	var shipments []models.Shipment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&shipments).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list shipments by order")
	}
	return shipments, nil
}

func (r *repository) UpdateStatus(ctx context.Context, shipmentID uuid.UUID, update StatusUpdate) error {
	changes := map[string]any{"status": update.Status}
	if update.PickedUpAt != nil {
		changes["picked_up_at"] = *update.PickedUpAt
	}
	if update.DeliveredAt != nil {
		changes["delivered_at"] = *update.DeliveredAt
	}
	if update.CancelledAt != nil {
		changes["cancelled_at"] = *update.CancelledAt
	}
	err := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", shipmentID).
		Updates(changes).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update shipment status")
	}
	return nil
}

// MarkCODCollected flips the collected flag exactly once; a false return
// means another writer already collected.
func (r *repository) MarkCODCollected(ctx context.Context, shipmentID uuid.UUID, settledAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND cod_collected = ?", shipmentID, false).
		Updates(map[string]any{
			"cod_collected":  true,
			"cod_settled_at": settledAt,
		})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, result.Error, "mark cod collected")
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AppendEvent(ctx context.Context, event *models.ShipmentEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append shipment event")
	}
	return nil
}
