package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/internal/catalog"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentInitiator opens the payment leg for a freshly created order on
// the same transaction.
type PaymentInitiator interface {
	Initiate(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.PaymentTransaction, error)
}

// ItemInput is one requested line at checkout.
type ItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Qty       int
}

// CreateOrderInput carries everything the storefront submits at checkout.
type CreateOrderInput struct {
	StoreID         uuid.UUID
	Channel         enums.OrderChannel
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	ShippingAddress types.Address
	PaymentMethod   enums.PaymentMethod
	Items           []ItemInput
	ShippingCents   int
	DiscountCents   int
	ActorID         *uuid.UUID
}

// Service turns a checkout submission into a persisted order.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
}

type service struct {
	catalog   catalog.Service
	ledger    stock.Ledger
	orderRepo orders.Repository
	customers customers.Service
	payments  PaymentInitiator
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
}

// NewService wires the checkout flow with its collaborators.
func NewService(
	cat catalog.Service,
	ledger stock.Ledger,
	orderRepo orders.Repository,
	cust customers.Service,
	payments PaymentInitiator,
	tx txRunner,
	ob outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cust == nil {
		return nil, fmt.Errorf("customers service required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment initiator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		catalog:   cat,
		ledger:    ledger,
		orderRepo: orderRepo,
		customers: cust,
		payments:  payments,
		tx:        tx,
		outbox:    ob,
		logg:      logg,
	}, nil
}

// CreateOrder runs the checkout sequence: resolve the catalog, reserve
// stock, then persist the order transactionally. The reservation happens
// before the transaction so an oversell can never be committed; if the
// persistence step fails the reservation is compensated with a release.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.catalog.Resolve(ctx, input.StoreID, productIDs)
	if err != nil {
		return nil, err
	}

	lineItems, subtotal := snapshotLines(input.Items, products)
	total := subtotal + input.ShippingCents - input.DiscountCents
	if total < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order total")
	}

	reserveLines := make([]stock.Line, 0, len(input.Items))
	for _, item := range input.Items {
		reserveLines = append(reserveLines, stock.Line{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Qty:       item.Qty,
		})
	}
	if err := s.ledger.Reserve(ctx, input.StoreID, reserveLines); err != nil {
		return nil, err
	}

	order, err := s.persistOrder(ctx, input, lineItems, subtotal, total)
	if err != nil {
		s.compensateReservation(ctx, input.StoreID, reserveLines)
		return nil, err
	}
	return order, nil
}

func (s *service) persistOrder(ctx context.Context, input CreateOrderInput, lineItems []models.OrderLineItem, subtotal, total int) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orderRepo.WithTx(tx)

		customer, err := s.customers.FindOrCreate(ctx, customers.UpsertInput{
			StoreID: input.StoreID,
			Name:    input.CustomerName,
			Phone:   input.CustomerPhone,
			Email:   input.CustomerEmail,
		})
		if err != nil {
			return err
		}

		seq, err := repo.NextOrderNumber(ctx, input.StoreID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "allocate order number")
		}

		channel := input.Channel
		if channel == "" {
			channel = enums.OrderChannelStorefront
		}

		order = &models.Order{
			StoreID:         input.StoreID,
			OrderNumber:     fmt.Sprintf("WV-%d", seq),
			CustomerID:      &customer.ID,
			Channel:         channel,
			Status:          enums.OrderStatusPending,
			PaymentStatus:   enums.PaymentStatusPending,
			PaymentMethod:   input.PaymentMethod,
			SubtotalCents:   subtotal,
			ShippingCents:   input.ShippingCents,
			DiscountCents:   input.DiscountCents,
			TotalCents:      total,
			ShippingAddress: input.ShippingAddress,
			Items:           lineItems,
			Version:         1,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create order")
		}

		txn, err := s.payments.Initiate(ctx, tx, order)
		if err != nil {
			return err
		}
		order.PaymentTransactionID = &txn.ID

		history := &models.OrderStatusHistory{
			OrderID: order.ID,
			Status:  enums.OrderStatusPending.String(),
			ActorID: input.ActorID,
		}
		if err := repo.AppendHistory(ctx, history); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append status history")
		}

		if err := s.customers.RecordOrder(ctx, customer.ID, int64(total)); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: input.ActorID, StoreID: input.StoreID},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				StoreID:       order.StoreID,
				OrderNumber:   order.OrderNumber,
				CustomerID:    order.CustomerID,
				PaymentMethod: order.PaymentMethod,
				TotalCents:    order.TotalCents,
				ItemCount:     len(order.Items),
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// compensateReservation releases stock reserved for an order that never
// made it to disk. A failure here leaves counts pinned until a manual
// restock, so it is logged loudly.
func (s *service) compensateReservation(ctx context.Context, storeID uuid.UUID, lines []stock.Line) {
	if err := s.ledger.Release(ctx, storeID, lines); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"store_id": storeID.String()})
		s.logg.Error(logCtx, "compensating stock release failed", err)
	}
}

func snapshotLines(items []ItemInput, products map[uuid.UUID]models.Product) ([]models.OrderLineItem, int) {
	lineItems := make([]models.OrderLineItem, 0, len(items))
	subtotal := 0
	for _, item := range items {
		product := products[item.ProductID]
		line := models.OrderLineItem{
			ProductID:      product.ID,
			VariantID:      item.VariantID,
			Name:           product.Name,
			SKU:            product.SKU,
			ImageURL:       product.ImageURL,
			UnitPriceCents: product.PriceCents,
			Qty:            item.Qty,
			LineTotalCents: product.PriceCents * item.Qty,
		}
		subtotal += line.LineTotalCents
		lineItems = append(lineItems, line)
	}
	return lineItems, subtotal
}

func validateInput(input CreateOrderInput) error {
	if input.StoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", input.PaymentMethod))
	}
	if input.ShippingCents < 0 || input.DiscountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping and discount cannot be negative")
	}
	return nil
}
