package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/pkg/db/models"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

const defaultPageSize = 50

// Service exposes store-scoped catalog reads used by the storefront and
// by checkout snapshotting.
type Service interface {
	Get(ctx context.Context, storeID, productID uuid.UUID) (*models.Product, error)
	List(ctx context.Context, storeID uuid.UUID, activeOnly bool, limit, offset int) ([]models.Product, error)
	Resolve(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type service struct {
	repo Repository
}

// NewService wires a catalog service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, storeID, productID uuid.UUID) (*models.Product, error) {
	if storeID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and product id are required")
	}
	product, err := s.repo.FindByID(ctx, storeID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load product")
	}
	return product, nil
}

func (s *service) List(ctx context.Context, storeID uuid.UUID, activeOnly bool, limit, offset int) ([]models.Product, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if limit <= 0 || limit > 200 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	products, err := s.repo.List(ctx, storeID, activeOnly, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list products")
	}
	return products, nil
}

// Resolve loads the requested products keyed by id. Missing or inactive
// products surface as a not-found error naming every unresolvable id.
func (s *service) Resolve(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if len(productIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one product id is required")
	}

	products, err := s.repo.FindByIDs(ctx, storeID, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "resolve products")
	}

	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		if p.Active {
			byID[p.ID] = p
		}
	}

	missing := []uuid.UUID{}
	seen := map[uuid.UUID]bool{}
	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "products not found").
			WithDetails(map[string]any{"product_ids": missing})
	}
	return byID, nil
}
