package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/db/models"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

const defaultPageSize = 50

// Service defines notification list/read operations for the dashboard.
type Service interface {
	List(ctx context.Context, storeID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, storeID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, storeID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, storeID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, storeID, unreadOnly, limit, offset)
}

func (s *service) MarkRead(ctx context.Context, storeID, notificationID uuid.UUID) error {
	if storeID == uuid.Nil || notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id and notification id are required")
	}
	updated, err := s.repo.MarkRead(ctx, storeID, notificationID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found or already read")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, storeID uuid.UUID) (int64, error) {
	if storeID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	return s.repo.MarkAllRead(ctx, storeID, time.Now().UTC())
}
