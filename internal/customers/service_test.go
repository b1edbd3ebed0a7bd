package customers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/pkg/db/models"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

type fakeRepository struct {
	findByPhoneFn func(ctx context.Context, storeID uuid.UUID, phone string) (*models.Customer, error)
	createFn      func(ctx context.Context, customer *models.Customer) error
	incrementFn   func(ctx context.Context, customerID uuid.UUID, spentCents int64) error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, customer *models.Customer) error {
	if f.createFn != nil {
		return f.createFn(ctx, customer)
	}
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, storeID, customerID uuid.UUID) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByPhone(ctx context.Context, storeID uuid.UUID, phone string) (*models.Customer, error) {
	if f.findByPhoneFn != nil {
		return f.findByPhoneFn(ctx, storeID, phone)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) IncrementOrderStats(ctx context.Context, customerID uuid.UUID, spentCents int64) error {
	if f.incrementFn != nil {
		return f.incrementFn(ctx, customerID, spentCents)
	}
	return nil
}

func TestFindOrCreateReturnsExisting(t *testing.T) {
	storeID := uuid.New()
	existing := &models.Customer{ID: uuid.New(), StoreID: storeID, Phone: "+15550100"}
	repo := &fakeRepository{
		findByPhoneFn: func(ctx context.Context, sid uuid.UUID, phone string) (*models.Customer, error) {
			return existing, nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	got, err := svc.FindOrCreate(context.Background(), UpsertInput{
		StoreID: storeID,
		Name:    "Dana",
		Phone:   "+15550100",
	})
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if got != existing {
		t.Fatalf("expected existing customer, got %+v", got)
	}
}

func TestFindOrCreateCreatesWhenMissing(t *testing.T) {
	storeID := uuid.New()
	var created *models.Customer
	repo := &fakeRepository{
		createFn: func(ctx context.Context, customer *models.Customer) error {
			created = customer
			return nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	got, err := svc.FindOrCreate(context.Background(), UpsertInput{
		StoreID: storeID,
		Name:    "  Dana  ",
		Phone:   " +15550100 ",
		Email:   "dana@example.com",
	})
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if created == nil || got != created {
		t.Fatal("expected customer to be created")
	}
	if created.Name != "Dana" || created.Phone != "+15550100" {
		t.Fatalf("input should be trimmed: %+v", created)
	}
}

func TestFindOrCreateValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	cases := []UpsertInput{
		{Name: "Dana", Phone: "+15550100"},
		{StoreID: uuid.New(), Phone: "+15550100"},
		{StoreID: uuid.New(), Name: "Dana"},
	}
	for i, input := range cases {
		_, err := svc.FindOrCreate(context.Background(), input)
		if err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
	}
}

func TestRecordOrder(t *testing.T) {
	var gotID uuid.UUID
	var gotSpent int64
	repo := &fakeRepository{
		incrementFn: func(ctx context.Context, customerID uuid.UUID, spentCents int64) error {
			gotID = customerID
			gotSpent = spentCents
			return nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	customerID := uuid.New()
	if err := svc.RecordOrder(context.Background(), customerID, 12900); err != nil {
		t.Fatalf("record order: %v", err)
	}
	if gotID != customerID || gotSpent != 12900 {
		t.Fatalf("unexpected call args: %s %d", gotID, gotSpent)
	}
}
