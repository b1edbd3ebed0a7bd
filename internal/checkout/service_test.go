package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/internal/customers"
	"github.com/wovera/storefront-backend/internal/orders"
	"github.com/wovera/storefront-backend/internal/stock"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/outbox"
	"github.com/wovera/storefront-backend/pkg/outbox/payloads"
	"github.com/wovera/storefront-backend/pkg/types"
)

type stubCatalog struct {
	products map[uuid.UUID]models.Product
	err      error
}

func (s *stubCatalog) Get(ctx context.Context, storeID, productID uuid.UUID) (*models.Product, error) {
	return nil, errors.New("not used")
}

func (s *stubCatalog) List(ctx context.Context, storeID uuid.UUID, activeOnly bool, limit, offset int) ([]models.Product, error) {
	return nil, errors.New("not used")
}

func (s *stubCatalog) Resolve(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

type stubLedger struct {
	reserved   []stock.Line
	released   []stock.Line
	reserveErr error
	releaseErr error
}

func (s *stubLedger) Reserve(ctx context.Context, storeID uuid.UUID, lines []stock.Line) error {
	if s.reserveErr != nil {
		return s.reserveErr
	}
	s.reserved = append(s.reserved, lines...)
	return nil
}

func (s *stubLedger) Release(ctx context.Context, storeID uuid.UUID, lines []stock.Line) error {
	if s.releaseErr != nil {
		return s.releaseErr
	}
	s.released = append(s.released, lines...)
	return nil
}

func (s *stubLedger) Commit(ctx context.Context, storeID uuid.UUID, lines []stock.Line) error {
	return errors.New("not used")
}

func (s *stubLedger) Availability(ctx context.Context, storeID uuid.UUID, productIDs []uuid.UUID) ([]models.StockItem, error) {
	return nil, errors.New("not used")
}

func (s *stubLedger) Restock(ctx context.Context, storeID, productID uuid.UUID, variantID *uuid.UUID, delta int) error {
	return errors.New("not used")
}

type stubOrderRepo struct {
	created   *models.Order
	history   []*models.OrderStatusHistory
	nextSeq   int64
	createErr error
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	order.ID = uuid.New()
	s.created = order
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error) {
	return nil, errors.New("not used")
}

func (s *stubOrderRepo) FindByNumber(ctx context.Context, storeID uuid.UUID, number string) (*models.Order, error) {
	return nil, errors.New("not used")
}

func (s *stubOrderRepo) List(ctx context.Context, storeID uuid.UUID, filter orders.ListFilter) ([]models.Order, error) {
	return nil, errors.New("not used")
}

func (s *stubOrderRepo) UpdateVersioned(ctx context.Context, orderID uuid.UUID, version int, update orders.StatusUpdate) (bool, error) {
	return false, errors.New("not used")
}

func (s *stubOrderRepo) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	s.history = append(s.history, entry)
	return nil
}

func (s *stubOrderRepo) NextOrderNumber(ctx context.Context, storeID uuid.UUID) (int64, error) {
	s.nextSeq++
	return s.nextSeq, nil
}

type stubCustomers struct {
	customer    *models.Customer
	recordedID  uuid.UUID
	recordCents int64
}

func (s *stubCustomers) Get(ctx context.Context, storeID, customerID uuid.UUID) (*models.Customer, error) {
	return nil, errors.New("not used")
}

func (s *stubCustomers) FindOrCreate(ctx context.Context, input customers.UpsertInput) (*models.Customer, error) {
	return s.customer, nil
}

func (s *stubCustomers) RecordOrder(ctx context.Context, customerID uuid.UUID, spentCents int64) error {
	s.recordedID = customerID
	s.recordCents = spentCents
	return nil
}

type stubInitiator struct {
	txn *models.PaymentTransaction
	err error
}

func (s *stubInitiator) Initiate(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.PaymentTransaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.txn, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type checkoutFixture struct {
	svc      Service
	catalog  *stubCatalog
	ledger   *stubLedger
	repo     *stubOrderRepo
	cust     *stubCustomers
	initiate *stubInitiator
	outbox   *stubOutbox
}

func newFixture(t *testing.T, products map[uuid.UUID]models.Product) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		catalog: &stubCatalog{products: products},
		ledger:  &stubLedger{},
		repo:    &stubOrderRepo{},
		cust: &stubCustomers{customer: &models.Customer{
			ID:      uuid.New(),
			StoreID: uuid.New(),
			Name:    "Amina Yusuf",
			Phone:   "+2347010000000",
		}},
		initiate: &stubInitiator{txn: &models.PaymentTransaction{ID: uuid.New()}},
		outbox:   &stubOutbox{},
	}
	logg := logger.New(logger.Options{ServiceName: "checkout-test"})
	svc, err := NewService(f.catalog, f.ledger, f.repo, f.cust, f.initiate, stubTxRunner{}, f.outbox, logg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func testProducts() (map[uuid.UUID]models.Product, uuid.UUID, uuid.UUID) {
	shirtID := uuid.New()
	mugID := uuid.New()
	products := map[uuid.UUID]models.Product{
		shirtID: {ID: shirtID, Name: "Linen Shirt", SKU: "SHIRT-01", PriceCents: 4500, Active: true},
		mugID:   {ID: mugID, Name: "Enamel Mug", SKU: "MUG-01", PriceCents: 1200, Active: true},
	}
	return products, shirtID, mugID
}

func TestCreateOrderHappyPath(t *testing.T) {
	products, shirtID, mugID := testProducts()
	f := newFixture(t, products)
	storeID := uuid.New()

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		StoreID:       storeID,
		CustomerName:  "Amina Yusuf",
		CustomerPhone: "+2347010000000",
		PaymentMethod: enums.PaymentMethodCOD,
		ShippingCents: 800,
		Items: []ItemInput{
			{ProductID: shirtID, Qty: 2},
			{ProductID: mugID, Qty: 1},
		},
		ShippingAddress: types.Address{City: "Lagos", Country: "NG"},
	})
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, "WV-1", order.OrderNumber)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 2*4500+1200, order.SubtotalCents)
	assert.Equal(t, 2*4500+1200+800, order.TotalCents)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "SHIRT-01", order.Items[0].SKU)
	assert.Equal(t, 9000, order.Items[0].LineTotalCents)
	require.NotNil(t, order.PaymentTransactionID)
	assert.Equal(t, f.initiate.txn.ID, *order.PaymentTransactionID)

	// Stock was reserved once, never released.
	require.Len(t, f.ledger.reserved, 2)
	assert.Empty(t, f.ledger.released)

	// Pending history row and the created event were written in the tx.
	require.Len(t, f.repo.history, 1)
	assert.Equal(t, "pending", f.repo.history[0].Status)
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventOrderCreated, f.outbox.events[0].EventType)
	payload, ok := f.outbox.events[0].Data.(payloads.OrderCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, order.TotalCents, payload.TotalCents)
	assert.Equal(t, 2, payload.ItemCount)

	assert.Equal(t, f.cust.customer.ID, f.cust.recordedID)
	assert.Equal(t, int64(order.TotalCents), f.cust.recordCents)
}

func TestCreateOrderReleasesStockWhenPersistFails(t *testing.T) {
	products, shirtID, _ := testProducts()
	f := newFixture(t, products)
	f.repo.createErr = errors.New("connection reset")

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		StoreID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodWallet,
		Items:         []ItemInput{{ProductID: shirtID, Qty: 1}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePersistence, typed.Code())

	// The reservation is compensated so the units are sellable again.
	require.Len(t, f.ledger.released, 1)
	assert.Equal(t, shirtID, f.ledger.released[0].ProductID)
}

func TestCreateOrderReservationFailureSkipsPersist(t *testing.T) {
	products, shirtID, _ := testProducts()
	f := newFixture(t, products)
	f.ledger.reserveErr = pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		StoreID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []ItemInput{{ProductID: shirtID, Qty: 5}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	assert.Nil(t, f.repo.created)
	assert.Empty(t, f.outbox.events)
	assert.Empty(t, f.ledger.released)
}

func TestCreateOrderSequencesOrderNumbers(t *testing.T) {
	products, shirtID, _ := testProducts()
	f := newFixture(t, products)

	input := CreateOrderInput{
		StoreID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []ItemInput{{ProductID: shirtID, Qty: 1}},
	}
	first, err := f.svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, "WV-1", first.OrderNumber)
	assert.Equal(t, "WV-2", second.OrderNumber)
}

func TestCreateOrderValidation(t *testing.T) {
	products, shirtID, _ := testProducts()
	f := newFixture(t, products)

	cases := []struct {
		name  string
		input CreateOrderInput
	}{
		{"missing store", CreateOrderInput{
			PaymentMethod: enums.PaymentMethodCOD,
			Items:         []ItemInput{{ProductID: shirtID, Qty: 1}},
		}},
		{"no items", CreateOrderInput{
			StoreID:       uuid.New(),
			PaymentMethod: enums.PaymentMethodCOD,
		}},
		{"zero quantity", CreateOrderInput{
			StoreID:       uuid.New(),
			PaymentMethod: enums.PaymentMethodCOD,
			Items:         []ItemInput{{ProductID: shirtID, Qty: 0}},
		}},
		{"unknown payment method", CreateOrderInput{
			StoreID:       uuid.New(),
			PaymentMethod: enums.PaymentMethod("barter"),
			Items:         []ItemInput{{ProductID: shirtID, Qty: 1}},
		}},
		{"negative discount", CreateOrderInput{
			StoreID:       uuid.New(),
			PaymentMethod: enums.PaymentMethodCOD,
			DiscountCents: -100,
			Items:         []ItemInput{{ProductID: shirtID, Qty: 1}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), tc.input)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		})
	}
}

func TestCreateOrderRejectsDiscountOverTotal(t *testing.T) {
	products, _, mugID := testProducts()
	f := newFixture(t, products)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		StoreID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodCOD,
		DiscountCents: 5000,
		Items:         []ItemInput{{ProductID: mugID, Qty: 1}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Empty(t, f.ledger.reserved)
}
