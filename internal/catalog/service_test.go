package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/pkg/db/models"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

type fakeRepository struct {
	findByIDsFn func(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) ([]models.Product, error)
	findByIDFn  func(ctx context.Context, storeID, productID uuid.UUID) (*models.Product, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, product *models.Product) error { return nil }

func (f *fakeRepository) Update(ctx context.Context, product *models.Product) error { return nil }

func (f *fakeRepository) FindByID(ctx context.Context, storeID, productID uuid.UUID) (*models.Product, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, storeID, productID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByIDs(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) ([]models.Product, error) {
	if f.findByIDsFn != nil {
		return f.findByIDsFn(ctx, storeID, productIDs)
	}
	return nil, nil
}

func (f *fakeRepository) List(ctx context.Context, storeID uuid.UUID, activeOnly bool, limit, offset int) ([]models.Product, error) {
	return nil, nil
}

func TestResolveReturnsActiveProducts(t *testing.T) {
	storeID := uuid.New()
	productA := uuid.New()
	productB := uuid.New()

	repo := &fakeRepository{
		findByIDsFn: func(ctx context.Context, sid uuid.UUID, ids []uuid.UUID) ([]models.Product, error) {
			return []models.Product{
				{ID: productA, StoreID: storeID, Name: "Mug", SKU: "MUG-1", PriceCents: 1200, Active: true},
				{ID: productB, StoreID: storeID, Name: "Tote", SKU: "TOTE-1", PriceCents: 2400, Active: true},
			}, nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	resolved, err := svc.Resolve(context.Background(), storeID, []uuid.UUID{productA, productB})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 products, got %d", len(resolved))
	}
	if resolved[productA].SKU != "MUG-1" {
		t.Fatalf("unexpected product mapping: %+v", resolved[productA])
	}
}

func TestResolveReportsAllMissingIDs(t *testing.T) {
	storeID := uuid.New()
	known := uuid.New()
	missingA := uuid.New()
	missingB := uuid.New()

	repo := &fakeRepository{
		findByIDsFn: func(ctx context.Context, sid uuid.UUID, ids []uuid.UUID) ([]models.Product, error) {
			return []models.Product{
				{ID: known, StoreID: storeID, Active: true},
			}, nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	_, err = svc.Resolve(context.Background(), storeID, []uuid.UUID{known, missingA, missingB})
	if err == nil {
		t.Fatal("expected not found error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	ids, ok := details["product_ids"].([]uuid.UUID)
	if !ok || len(ids) != 2 {
		t.Fatalf("expected both missing ids, got %v", details["product_ids"])
	}
}

func TestResolveTreatsInactiveAsMissing(t *testing.T) {
	storeID := uuid.New()
	inactive := uuid.New()

	repo := &fakeRepository{
		findByIDsFn: func(ctx context.Context, sid uuid.UUID, ids []uuid.UUID) ([]models.Product, error) {
			return []models.Product{
				{ID: inactive, StoreID: storeID, Active: false},
			}, nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	_, err = svc.Resolve(context.Background(), storeID, []uuid.UUID{inactive})
	if err == nil {
		t.Fatal("expected not found error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	_, err = svc.Get(context.Background(), uuid.New(), uuid.New())
	if err == nil {
		t.Fatal("expected not found error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}
