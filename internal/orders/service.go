package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/internal/stock"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/outbox"
	"github.com/wovera/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockMutator moves reserved stock inside the order transaction.
type StockMutator interface {
	Release(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, lines []stock.Line) error
	Commit(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, lines []stock.Line) error
}

// TransitionInput carries a lifecycle move request.
type TransitionInput struct {
	StoreID  uuid.UUID
	OrderID  uuid.UUID
	ToStatus enums.OrderStatus
	Note     string
	Reason   string
	ActorID  *uuid.UUID
}

// PaymentUpdateInput moves the payment status on an order.
type PaymentUpdateInput struct {
	StoreID       uuid.UUID
	OrderID       uuid.UUID
	PaymentStatus enums.PaymentStatus
	Provider      string
	AmountCents   int
	TransactionID *uuid.UUID
}

// FulfillmentInput records carrier details on an order.
type FulfillmentInput struct {
	StoreID        uuid.UUID
	OrderID        uuid.UUID
	Carrier        string
	TrackingNumber string
	TrackingURL    string
}

// Service defines order lifecycle operations beyond repository reads.
type Service interface {
	Get(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, storeID uuid.UUID, orderNumber string) (*models.Order, error)
	List(ctx context.Context, storeID uuid.UUID, filter ListFilter) ([]models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, input PaymentUpdateInput) error
	UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, input PaymentUpdateInput) error
	UpdateFulfillment(ctx context.Context, input FulfillmentInput) error
	AddNote(ctx context.Context, storeID, orderID uuid.UUID, note string, actorID *uuid.UUID) error
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	stockMut StockMutator
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, stockMut StockMutator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if stockMut == nil {
		return nil, fmt.Errorf("stock mutator required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, stockMut: stockMut}, nil
}

func (s *service) Get(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error) {
	if storeID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and order id are required")
	}
	order, err := s.repo.FindByID(ctx, storeID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, storeID uuid.UUID, orderNumber string) (*models.Order, error) {
	if storeID == uuid.Nil || orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and order number are required")
	}
	order, err := s.repo.FindByNumber(ctx, storeID, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, storeID uuid.UUID, filter ListFilter) ([]models.Order, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	orders, err := s.repo.List(ctx, storeID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list orders")
	}
	return orders, nil
}

// Transition moves an order through the lifecycle graph. Same-status
// requests are no-ops; illegal moves come back as state conflicts naming
// both endpoints. Cancelling a pre-shipment order releases its reserved
// stock; delivering burns it.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.StoreID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and order id are required")
	}
	if !input.ToStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.ToStatus))
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.StoreID, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
		}

		if order.Status == input.ToStatus {
			result = order
			return nil
		}
		if !CanTransition(order.Status, input.ToStatus) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed").
				WithDetails(map[string]any{"from": order.Status, "to": input.ToStatus})
		}

		now := time.Now()
		update := StatusUpdate{Status: &input.ToStatus}
		switch input.ToStatus {
		case enums.OrderStatusShipped:
			update.ShippedAt = &now
		case enums.OrderStatusDelivered:
			update.DeliveredAt = &now
		case enums.OrderStatusCancelled:
			update.CancelledAt = &now
			if input.Reason != "" {
				update.CancelReason = &input.Reason
			}
		case enums.OrderStatusRefunded:
			refunded := enums.PaymentStatusRefunded
			update.PaymentStatus = &refunded
			update.RefundedAt = &now
		}

		ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, update)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
		}

		switch {
		case input.ToStatus == enums.OrderStatusCancelled && releasesStockOnCancel(order.Status):
			if err := s.stockMut.Release(ctx, tx, order.StoreID, stockLines(order.Items)); err != nil {
				return err
			}
		case input.ToStatus == enums.OrderStatusDelivered:
			if err := s.stockMut.Commit(ctx, tx, order.StoreID, stockLines(order.Items)); err != nil {
				return err
			}
		}

		history := &models.OrderStatusHistory{
			OrderID: order.ID,
			Status:  input.ToStatus.String(),
			ActorID: input.ActorID,
		}
		switch {
		case input.Note != "":
			history.Note = &input.Note
		case input.Reason != "":
			history.Note = &input.Reason
		default:
			generated := fmt.Sprintf("status changed from %s to %s", order.Status, input.ToStatus)
			history.Note = &generated
		}
		if err := repo.AppendHistory(ctx, history); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append status history")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         buildActor(input.ActorID, order.StoreID),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				StoreID:    order.StoreID,
				FromStatus: order.Status,
				ToStatus:   input.ToStatus,
				ChangedAt:  now,
				Note:       input.Note,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		order.Status = input.ToStatus
		order.Version++
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdatePaymentStatus applies payment movement with the same version
// guard as lifecycle transitions. Re-applying the current status is a
// no-op so payment webhooks can be retried safely.
func (s *service) UpdatePaymentStatus(ctx context.Context, input PaymentUpdateInput) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.UpdatePaymentStatusTx(ctx, tx, input)
	})
}

// UpdatePaymentStatusTx is the same movement bound to a caller
// transaction, so payment reconciliation can commit its own state and
// the order update as one unit.
func (s *service) UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, input PaymentUpdateInput) error {
	if input.StoreID == uuid.Nil || input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id and order id are required")
	}
	if !input.PaymentStatus.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment status %q", input.PaymentStatus))
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, input.StoreID, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}

	if order.PaymentStatus == input.PaymentStatus {
		return nil
	}
	if err := checkPaymentMove(order.PaymentStatus, input.PaymentStatus); err != nil {
		return err
	}

	now := time.Now()
	update := StatusUpdate{PaymentStatus: &input.PaymentStatus}
	switch input.PaymentStatus {
	case enums.PaymentStatusPaid:
		update.PaidAt = &now
	case enums.PaymentStatusRefunded:
		update.RefundedAt = &now
	}
	if input.TransactionID != nil {
		update.PaymentTransactionID = input.TransactionID
	}

	ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, update)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update payment status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
	}

	note := fmt.Sprintf("payment status changed from %s to %s", order.PaymentStatus, input.PaymentStatus)
	if input.Provider != "" {
		note = fmt.Sprintf("%s via %s", note, input.Provider)
	}
	history := &models.OrderStatusHistory{
		OrderID: order.ID,
		Status:  "payment_" + input.PaymentStatus.String(),
		Note:    &note,
	}
	if err := repo.AppendHistory(ctx, history); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append payment history")
	}

	amount := input.AmountCents
	if amount == 0 {
		amount = order.TotalCents
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentUpdated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(nil, order.StoreID),
		Data: payloads.OrderPaymentUpdatedEvent{
			OrderID:       order.ID,
			StoreID:       order.StoreID,
			PaymentStatus: input.PaymentStatus,
			Provider:      input.Provider,
			AmountCents:   amount,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) UpdateFulfillment(ctx context.Context, input FulfillmentInput) error {
	if input.StoreID == uuid.Nil || input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id and order id are required")
	}
	if input.Carrier == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "carrier is required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.StoreID, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
		}

		update := StatusUpdate{
			Carrier:        &input.Carrier,
			TrackingNumber: &input.TrackingNumber,
			TrackingURL:    &input.TrackingURL,
		}
		ok, err := repo.UpdateVersioned(ctx, order.ID, order.Version, update)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update fulfillment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
		}
		return nil
	})
}

func (s *service) AddNote(ctx context.Context, storeID, orderID uuid.UUID, note string, actorID *uuid.UUID) error {
	if storeID == uuid.Nil || orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id and order id are required")
	}
	if note == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "note is required")
	}

	order, err := s.repo.FindByID(ctx, storeID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}

	entry := &models.OrderStatusHistory{
		OrderID: order.ID,
		Status:  order.Status.String(),
		Note:    &note,
		ActorID: actorID,
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append note")
	}
	return nil
}

// checkPaymentMove rejects payment regressions: paid and refunded are
// sticky, refunds only follow payment.
func checkPaymentMove(from, to enums.PaymentStatus) error {
	allowed := map[enums.PaymentStatus][]enums.PaymentStatus{
		enums.PaymentStatusPending: {enums.PaymentStatusPaid, enums.PaymentStatusFailed},
		enums.PaymentStatusFailed:  {enums.PaymentStatusPaid},
		enums.PaymentStatusPaid:    {enums.PaymentStatusRefunded},
	}
	for _, status := range allowed[from] {
		if status == to {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payment status change not allowed").
		WithDetails(map[string]any{"from": from, "to": to})
}

func stockLines(items []models.OrderLineItem) []stock.Line {
	lines := make([]stock.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, stock.Line{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Qty:       item.Qty,
		})
	}
	return lines
}

func buildActor(actorID *uuid.UUID, storeID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{
		ActorID: actorID,
		StoreID: storeID,
	}
}
