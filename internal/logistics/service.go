package logistics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/internal/logistics/providers"
	"github.com/wovera/storefront-backend/internal/orders"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/outbox"
	"github.com/wovera/storefront-backend/pkg/outbox/payloads"
	"github.com/wovera/storefront-backend/pkg/redis"
	"github.com/wovera/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type codCollector interface {
	MarkOrderPaid(ctx context.Context, storeID, orderID uuid.UUID, amountCents int) error
}

type orderLifecycle interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
	UpdateFulfillment(ctx context.Context, input orders.FulfillmentInput) error
}

// CreateShipmentInput books a consignment for an order.
type CreateShipmentInput struct {
	StoreID         uuid.UUID
	OrderID         uuid.UUID
	Provider        string
	PickupAddress   types.Address
	DeliveryAddress types.Address
	PackageDesc     string
	WeightGrams     int
	CODAmountCents  int
}

// Tracker runs the shipment lifecycle: booking, carrier event ingestion,
// cancellation and cash-on-delivery settlement.
type Tracker interface {
	CreateShipment(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error)
	Cancel(ctx context.Context, storeID, shipmentID uuid.UUID) error
	HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error
	HandleEvent(ctx context.Context, provider string, event *providers.WebhookEvent) error
	CollectCOD(ctx context.Context, storeID, shipmentID uuid.UUID) error
	GetTracking(ctx context.Context, storeID, shipmentID uuid.UUID) (*providers.TrackingInfo, error)
	CalculateRate(ctx context.Context, provider string, req providers.RateRequest) (*providers.RateQuote, error)
	Get(ctx context.Context, storeID, shipmentID uuid.UUID) (*models.Shipment, error)
}

type tracker struct {
	repo     Repository
	adapters map[string]providers.Adapter
	payments codCollector
	orders   orderLifecycle
	idem     redis.IdempotencyStore
	idemTTL  time.Duration
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
}

// NewTracker wires the shipment lifecycle tracker.
func NewTracker(
	repo Repository,
	adapters []providers.Adapter,
	payments codCollector,
	orderSvc orderLifecycle,
	idem redis.IdempotencyStore,
	idemTTL time.Duration,
	tx txRunner,
	ob outboxPublisher,
	logg *logger.Logger,
) (Tracker, error) {
	if repo == nil {
		return nil, fmt.Errorf("logistics repository required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one logistics adapter required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payments engine required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if idem == nil {
		return nil, fmt.Errorf("idempotency store required")
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
	byName := make(map[string]providers.Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil || adapter.Name() == "" {
			return nil, fmt.Errorf("logistics adapter without a name")
		}
		byName[adapter.Name()] = adapter
	}
	if idemTTL <= 0 {
		idemTTL = 720 * time.Hour
	}
	return &tracker{
		repo:     repo,
		adapters: byName,
		payments: payments,
		orders:   orderSvc,
		idem:     idem,
		idemTTL:  idemTTL,
		tx:       tx,
		outbox:   ob,
		logg:     logg,
	}, nil
}

// CreateShipment books with the carrier first; a provider failure leaves
// no local trace. If the local write fails after booking, the consignment
// is voided as compensation.
func (t *tracker) CreateShipment(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error) {
	if input.StoreID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id and order id are required")
	}
	adapter, err := t.adapter(input.Provider)
	if err != nil {
		return nil, err
	}

	result, err := adapter.CreateShipment(ctx, providers.ShipmentRequest{
		Reference:       input.OrderID.String(),
		PickupAddress:   input.PickupAddress,
		DeliveryAddress: input.DeliveryAddress,
		PackageDesc:     input.PackageDesc,
		WeightGrams:     input.WeightGrams,
		CODAmountCents:  input.CODAmountCents,
	})
	if err != nil {
		return nil, err
	}

	shipment := &models.Shipment{
		StoreID:         input.StoreID,
		OrderID:         input.OrderID,
		Provider:        adapter.Name(),
		ConsignmentID:   result.ConsignmentID,
		TrackingNumber:  result.TrackingNumber,
		TrackingURL:     result.TrackingURL,
		Status:          enums.ShipmentStatusPending,
		PickupAddress:   input.PickupAddress,
		DeliveryAddress: input.DeliveryAddress,
		PackageDesc:     input.PackageDesc,
		WeightGrams:     input.WeightGrams,
		CostCents:       result.CostCents,
		CODAmountCents:  input.CODAmountCents,
	}

	err = t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := t.repo.WithTx(tx)
		if err := repo.Create(ctx, shipment); err != nil {
			return err
		}
		if err := repo.AppendEvent(ctx, &models.ShipmentEvent{
			ShipmentID:  shipment.ID,
			Status:      enums.ShipmentStatusPending.String(),
			Description: "consignment booked",
			OccurredAt:  time.Now().UTC(),
		}); err != nil {
			return err
		}
		return t.outbox.Emit(ctx, tx, t.updatedEvent(shipment, enums.ShipmentStatusPending, "consignment booked", time.Now().UTC()))
	})
	if err != nil {
		if cancelErr := adapter.CancelShipment(ctx, result.ConsignmentID); cancelErr != nil {
			logCtx := t.logg.WithFields(ctx, map[string]any{"consignment_id": result.ConsignmentID})
			t.logg.Error(logCtx, "compensating consignment cancel failed", cancelErr)
		}
		return nil, err
	}

	if err := t.orders.UpdateFulfillment(ctx, orders.FulfillmentInput{
		StoreID:        input.StoreID,
		OrderID:        input.OrderID,
		Carrier:        adapter.Name(),
		TrackingNumber: result.TrackingNumber,
		TrackingURL:    result.TrackingURL,
	}); err != nil {
		t.logg.Error(ctx, "stamp order fulfillment failed", err)
	}
	return shipment, nil
}

// Cancel voids a consignment. The carrier must accept the cancellation
// before any local state changes.
func (t *tracker) Cancel(ctx context.Context, storeID, shipmentID uuid.UUID) error {
	shipment, err := t.repo.FindByID(ctx, storeID, shipmentID)
	if err != nil {
		return err
	}
	if shipment.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment can no longer be cancelled").
			WithDetails(map[string]any{"status": shipment.Status})
	}
	adapter, err := t.adapter(shipment.Provider)
	if err != nil {
		return err
	}
	if err := adapter.CancelShipment(ctx, shipment.ConsignmentID); err != nil {
		return err
	}

	now := time.Now().UTC()
	return t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := t.repo.WithTx(tx)
		if err := repo.UpdateStatus(ctx, shipment.ID, StatusUpdate{
			Status:      enums.ShipmentStatusCancelled,
			CancelledAt: &now,
		}); err != nil {
			return err
		}
		if err := repo.AppendEvent(ctx, &models.ShipmentEvent{
			ShipmentID:  shipment.ID,
			Status:      enums.ShipmentStatusCancelled.String(),
			Description: "cancelled by merchant",
			OccurredAt:  now,
		}); err != nil {
			return err
		}
		return t.outbox.Emit(ctx, tx, t.updatedEvent(shipment, enums.ShipmentStatusCancelled, "cancelled by merchant", now))
	})
}

// HandleWebhook authenticates a raw carrier callback and feeds it
// through HandleEvent.
func (t *tracker) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error {
	adapter, err := t.adapter(provider)
	if err != nil {
		return err
	}
	event, err := adapter.HandleWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}
	return t.HandleEvent(ctx, provider, event)
}

// HandleEvent ingests one carrier tracking event. Every event lands in
// the timeline; a delivered event on an uncollected COD shipment also
// settles the cash exactly once.
func (t *tracker) HandleEvent(ctx context.Context, provider string, event *providers.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "carrier event required")
	}
	if event.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "carrier event id required")
	}
	key := t.idem.WebhookKey(provider, event.EventID)
	fresh, err := t.idem.SetNX(ctx, key, "1", t.idemTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "webhook dedup check")
	}
	if !fresh {
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "event already processed").
			WithDetails(map[string]any{"event_id": event.EventID})
	}

	if err := t.applyEvent(ctx, provider, event); err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
			if delErr := t.idem.Del(ctx, key); delErr != nil {
				t.logg.Error(ctx, "release webhook dedup key failed", delErr)
			}
		}
		return err
	}
	return nil
}

func (t *tracker) applyEvent(ctx context.Context, provider string, event *providers.WebhookEvent) error {
	shipment, err := t.repo.FindByProviderRef(ctx, provider, event.ConsignmentID)
	if err != nil {
		return err
	}

	update := StatusUpdate{Status: event.Status}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	switch event.Status {
	case enums.ShipmentStatusPickedUp:
		update.PickedUpAt = &occurredAt
	case enums.ShipmentStatusDelivered:
		update.DeliveredAt = &occurredAt
	case enums.ShipmentStatusCancelled:
		update.CancelledAt = &occurredAt
	}

	err = t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := t.repo.WithTx(tx)
		if err := repo.AppendEvent(ctx, &models.ShipmentEvent{
			ShipmentID:  shipment.ID,
			Status:      event.Status.String(),
			Description: event.Description,
			Location:    event.Location,
			Payload:     payloadMap(event.Raw),
			OccurredAt:  occurredAt,
		}); err != nil {
			return err
		}
		if shipment.Status != event.Status {
			if err := repo.UpdateStatus(ctx, shipment.ID, update); err != nil {
				return err
			}
		}
		return t.outbox.Emit(ctx, tx, t.updatedEvent(shipment, event.Status, event.Description, occurredAt))
	})
	if err != nil {
		return err
	}
	shipment.Status = event.Status

	t.syncOrder(ctx, shipment, event.Status)

	// collect owns the already-collected case so a redelivered delivered
	// event can still recover a settlement lost after the flip committed.
	if event.Status == enums.ShipmentStatusDelivered && shipment.IsCOD() {
		if err := t.collect(ctx, shipment); err != nil {
			// The delivery itself is recorded; a settlement race with a
			// manual collection is not an ingest failure.
			if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
				return nil
			}
			return err
		}
	}
	return nil
}

// syncOrder mirrors carrier progress onto the order lifecycle. A state
// conflict means a merchant already moved the order; that is not an
// ingest failure.
func (t *tracker) syncOrder(ctx context.Context, shipment *models.Shipment, status enums.ShipmentStatus) {
	var target enums.OrderStatus
	switch status {
	case enums.ShipmentStatusPickedUp:
		target = enums.OrderStatusShipped
	case enums.ShipmentStatusDelivered:
		target = enums.OrderStatusDelivered
	default:
		return
	}
	_, err := t.orders.Transition(ctx, orders.TransitionInput{
		StoreID:  shipment.StoreID,
		OrderID:  shipment.OrderID,
		ToStatus: target,
		Note:     fmt.Sprintf("carrier reported %s", status),
	})
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		logCtx := t.logg.WithFields(ctx, map[string]any{
			"shipment_id": shipment.ID.String(),
			"order_id":    shipment.OrderID.String(),
		})
		t.logg.Error(logCtx, "sync order from carrier event failed", err)
	}
}

// CollectCOD records a manual cash collection against a delivered COD
// shipment. Double collection is rejected.
func (t *tracker) CollectCOD(ctx context.Context, storeID, shipmentID uuid.UUID) error {
	shipment, err := t.repo.FindByID(ctx, storeID, shipmentID)
	if err != nil {
		return err
	}
	if !shipment.IsCOD() {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipment is not cash on delivery")
	}
	return t.collect(ctx, shipment)
}

// collect flips the collected flag under a guard so that the carrier
// event path and the manual path settle at most once between them.
func (t *tracker) collect(ctx context.Context, shipment *models.Shipment) error {
	now := time.Now().UTC()
	var flipped bool
	err := t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := t.repo.WithTx(tx)
		applied, err := repo.MarkCODCollected(ctx, shipment.ID, now)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		flipped = true
		return t.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentCODSettled,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Actor:         &outbox.ActorRef{StoreID: shipment.StoreID},
			Data: payloads.ShipmentCODSettledEvent{
				ShipmentID:  shipment.ID,
				OrderID:     shipment.OrderID,
				StoreID:     shipment.StoreID,
				AmountCents: shipment.CODAmountCents,
				SettledAt:   now,
			},
		})
	})
	if err != nil {
		return err
	}
	if !flipped {
		// A prior attempt may have committed the flip and then lost the
		// payment update. Re-driving settlement here makes the carrier's
		// retry recover it; the engine's terminal guard keeps it to one.
		if err := t.payments.MarkOrderPaid(ctx, shipment.StoreID, shipment.OrderID, shipment.CODAmountCents); err != nil &&
			!pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "cash already collected")
	}
	return t.payments.MarkOrderPaid(ctx, shipment.StoreID, shipment.OrderID, shipment.CODAmountCents)
}

// GetTracking proxies the carrier's live timeline for a shipment.
func (t *tracker) GetTracking(ctx context.Context, storeID, shipmentID uuid.UUID) (*providers.TrackingInfo, error) {
	shipment, err := t.repo.FindByID(ctx, storeID, shipmentID)
	if err != nil {
		return nil, err
	}
	adapter, err := t.adapter(shipment.Provider)
	if err != nil {
		return nil, err
	}
	return adapter.GetTracking(ctx, shipment.ConsignmentID)
}

// CalculateRate quotes a consignment without booking it.
func (t *tracker) CalculateRate(ctx context.Context, provider string, req providers.RateRequest) (*providers.RateQuote, error) {
	adapter, err := t.adapter(provider)
	if err != nil {
		return nil, err
	}
	return adapter.CalculateRate(ctx, req)
}

func (t *tracker) Get(ctx context.Context, storeID, shipmentID uuid.UUID) (*models.Shipment, error) {
	return t.repo.FindByID(ctx, storeID, shipmentID)
}

// adapter resolves a carrier by name; an empty name picks the sole
// configured carrier when there is exactly one.
func (t *tracker) adapter(name string) (providers.Adapter, error) {
	if name == "" && len(t.adapters) == 1 {
		for _, adapter := range t.adapters {
			return adapter, nil
		}
	}
	adapter, ok := t.adapters[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound,
			fmt.Sprintf("unknown logistics provider %q", name))
	}
	return adapter, nil
}

func (t *tracker) updatedEvent(shipment *models.Shipment, status enums.ShipmentStatus, description string, occurredAt time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventShipmentUpdated,
		AggregateType: enums.AggregateShipment,
		AggregateID:   shipment.ID,
		Actor:         &outbox.ActorRef{StoreID: shipment.StoreID},
		Data: payloads.ShipmentUpdatedEvent{
			ShipmentID:  shipment.ID,
			OrderID:     shipment.OrderID,
			StoreID:     shipment.StoreID,
			Provider:    shipment.Provider,
			Status:      status,
			Description: description,
			OccurredAt:  occurredAt,
		},
	}
}

func payloadMap(raw json.RawMessage) types.JSONMap {
	if len(raw) == 0 {
		return nil
	}
	payload := types.JSONMap{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return types.JSONMap{"raw": string(raw)}
	}
	return payload
}
