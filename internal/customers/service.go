package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/wovera/storefront-backend/pkg/db"
	"github.com/wovera/storefront-backend/pkg/db/models"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

// UpsertInput carries the buyer identity captured at checkout.
type UpsertInput struct {
	StoreID uuid.UUID
	Name    string
	Phone   string
	Email   string
}

// Service exposes customer lookups and the order-stat denormalization
// maintained by checkout.
type Service interface {
	Get(ctx context.Context, storeID, customerID uuid.UUID) (*models.Customer, error)
	FindOrCreate(ctx context.Context, input UpsertInput) (*models.Customer, error)
	RecordOrder(ctx context.Context, customerID uuid.UUID, spentCents int64) error
}

type service struct {
	repo Repository
}

// NewService wires a customer service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, storeID, customerID uuid.UUID) (*models.Customer, error) {
	if storeID == uuid.Nil || customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and customer id are required")
	}
	customer, err := s.repo.FindByID(ctx, storeID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load customer")
	}
	return customer, nil
}

// FindOrCreate matches on the store/phone pair. A concurrent first order
// from the same phone loses the insert race and falls back to the lookup.
func (s *service) FindOrCreate(ctx context.Context, input UpsertInput) (*models.Customer, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	phone := strings.TrimSpace(input.Phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	existing, err := s.repo.FindByPhone(ctx, input.StoreID, phone)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "lookup customer")
	}

	customer := &models.Customer{
		StoreID: input.StoreID,
		Name:    name,
		Phone:   phone,
		Email:   strings.TrimSpace(input.Email),
	}
	if err := s.repo.Create(ctx, customer); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_customers_store_phone") {
			return s.findAfterRace(ctx, input.StoreID, phone)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create customer")
	}
	return customer, nil
}

func (s *service) RecordOrder(ctx context.Context, customerID uuid.UUID, spentCents int64) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if spentCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "spent amount cannot be negative")
	}
	if err := s.repo.IncrementOrderStats(ctx, customerID, spentCents); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record customer order")
	}
	return nil
}

func (s *service) findAfterRace(ctx context.Context, storeID uuid.UUID, phone string) (*models.Customer, error) {
	customer, err := s.repo.FindByPhone(ctx, storeID, phone)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "lookup customer after insert race")
	}
	return customer, nil
}
