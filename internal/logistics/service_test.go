package logistics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/internal/logistics/providers"
	"github.com/wovera/storefront-backend/internal/orders"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/outbox"
	"github.com/wovera/storefront-backend/pkg/outbox/payloads"
)

type stubShipmentsRepo struct {
	shipment  *models.Shipment
	events    []*models.ShipmentEvent
	updates   []StatusUpdate
	createErr error
	created   *models.Shipment
}

func (s *stubShipmentsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubShipmentsRepo) Create(ctx context.Context, shipment *models.Shipment) error {
	if s.createErr != nil {
		return s.createErr
	}
	shipment.ID = uuid.New()
	s.created = shipment
	return nil
}

func (s *stubShipmentsRepo) FindByID(ctx context.Context, storeID, shipmentID uuid.UUID) (*models.Shipment, error) {
	if s.shipment == nil || s.shipment.ID != shipmentID || s.shipment.StoreID != storeID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
	}
	clone := *s.shipment
	return &clone, nil
}

func (s *stubShipmentsRepo) FindByProviderRef(ctx context.Context, provider, consignmentID string) (*models.Shipment, error) {
	if s.shipment == nil || s.shipment.ConsignmentID != consignmentID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
	}
	clone := *s.shipment
	return &clone, nil
}

func (s *stubShipmentsRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	return nil, errors.New("not used")
}

func (s *stubShipmentsRepo) UpdateStatus(ctx context.Context, shipmentID uuid.UUID, update StatusUpdate) error {
	s.updates = append(s.updates, update)
	s.shipment.Status = update.Status
	return nil
}

func (s *stubShipmentsRepo) MarkCODCollected(ctx context.Context, shipmentID uuid.UUID, settledAt time.Time) (bool, error) {
	if s.shipment.CODCollected {
		return false, nil
	}
	s.shipment.CODCollected = true
	s.shipment.CODSettledAt = &settledAt
	return true, nil
}

func (s *stubShipmentsRepo) AppendEvent(ctx context.Context, event *models.ShipmentEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fakeCarrier struct {
	name        string
	createErr   error
	cancelErr   error
	cancelled   []string
	createCalls int
	tracking    *providers.TrackingInfo
	quote       *providers.RateQuote
}

func (f *fakeCarrier) Name() string { return f.name }

func (f *fakeCarrier) CalculateRate(ctx context.Context, req providers.RateRequest) (*providers.RateQuote, error) {
	if f.quote == nil {
		return nil, errors.New("no quote configured")
	}
	return f.quote, nil
}

func (f *fakeCarrier) CreateShipment(ctx context.Context, req providers.ShipmentRequest) (*providers.ShipmentResult, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &providers.ShipmentResult{
		ConsignmentID:  "cons-001",
		TrackingNumber: "TRK-001",
		TrackingURL:    "https://track.example/TRK-001",
		CostCents:      1500,
	}, nil
}

func (f *fakeCarrier) GetTracking(ctx context.Context, consignmentID string) (*providers.TrackingInfo, error) {
	if f.tracking == nil {
		return nil, errors.New("no tracking configured")
	}
	return f.tracking, nil
}

func (f *fakeCarrier) CancelShipment(ctx context.Context, consignmentID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, consignmentID)
	return nil
}

func (f *fakeCarrier) HandleWebhook(ctx context.Context, payload []byte, signature string) (*providers.WebhookEvent, error) {
	return nil, errors.New("not used")
}

// stubCollector settles each order at most once, the way the payment
// engine's terminal transaction guard does.
type stubCollector struct {
	calls    []uuid.UUID
	paid     map[uuid.UUID]bool
	failNext error
}

func (s *stubCollector) MarkOrderPaid(ctx context.Context, storeID, orderID uuid.UUID, amountCents int) error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if s.paid == nil {
		s.paid = map[uuid.UUID]bool{}
	}
	if s.paid[orderID] {
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "transaction already settled")
	}
	s.paid[orderID] = true
	s.calls = append(s.calls, orderID)
	return nil
}

type stubOrderLifecycle struct {
	transitions   []orders.TransitionInput
	fulfillments  []orders.FulfillmentInput
	transitionErr error
}

func (s *stubOrderLifecycle) Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error) {
	if s.transitionErr != nil {
		return nil, s.transitionErr
	}
	s.transitions = append(s.transitions, input)
	return &models.Order{}, nil
}

func (s *stubOrderLifecycle) UpdateFulfillment(ctx context.Context, input orders.FulfillmentInput) error {
	s.fulfillments = append(s.fulfillments, input)
	return nil
}

type stubIdemStore struct {
	seen map[string]bool
}

func newStubIdemStore() *stubIdemStore { return &stubIdemStore{seen: map[string]bool{}} }

func (s *stubIdemStore) Get(ctx context.Context, key string) (string, error) { return "", nil }

func (s *stubIdemStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *stubIdemStore) WebhookKey(provider, eventID string) string {
	return "wv:webhook:" + provider + ":" + eventID
}

func (s *stubIdemStore) IdempotencyKey(scope, id string) string {
	return "wv:idempotency:" + scope + ":" + id
}

func (s *stubIdemStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.seen, key)
	}
	return nil
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

type trackerFixture struct {
	tracker  Tracker
	repo     *stubShipmentsRepo
	carrier  *fakeCarrier
	payments *stubCollector
	orders   *stubOrderLifecycle
	outbox   *stubOutbox
}

func newTrackerFixture(t *testing.T, shipment *models.Shipment) *trackerFixture {
	t.Helper()
	f := &trackerFixture{
		repo:     &stubShipmentsRepo{shipment: shipment},
		carrier:  &fakeCarrier{name: "swiftship"},
		payments: &stubCollector{},
		orders:   &stubOrderLifecycle{},
		outbox:   &stubOutbox{},
	}
	logg := logger.New(logger.Options{ServiceName: "logistics-test"})
	tracker, err := NewTracker(
		f.repo,
		[]providers.Adapter{f.carrier},
		f.payments,
		f.orders,
		newStubIdemStore(),
		time.Hour,
		stubTxRunner{},
		f.outbox,
		logg,
	)
	require.NoError(t, err)
	f.tracker = tracker
	return f
}

func testShipment(status enums.ShipmentStatus, codCents int) *models.Shipment {
	return &models.Shipment{
		ID:             uuid.New(),
		StoreID:        uuid.New(),
		OrderID:        uuid.New(),
		Provider:       "swiftship",
		ConsignmentID:  "cons-001",
		Status:         status,
		CODAmountCents: codCents,
	}
}

func carrierEvent(status enums.ShipmentStatus) *providers.WebhookEvent {
	return &providers.WebhookEvent{
		EventID:       "evt-" + uuid.NewString(),
		ConsignmentID: "cons-001",
		Status:        status,
		Description:   "scan",
		Location:      "Lagos Hub",
		OccurredAt:    time.Now().UTC(),
	}
}

func TestCreateShipmentBooksCarrierFirst(t *testing.T) {
	f := newTrackerFixture(t, nil)
	storeID := uuid.New()
	orderID := uuid.New()

	shipment, err := f.tracker.CreateShipment(context.Background(), CreateShipmentInput{
		StoreID:        storeID,
		OrderID:        orderID,
		Provider:       "swiftship",
		WeightGrams:    1200,
		CODAmountCents: 12900,
	})
	require.NoError(t, err)
	require.NotNil(t, shipment)

	assert.Equal(t, "cons-001", shipment.ConsignmentID)
	assert.Equal(t, 1500, shipment.CostCents)
	assert.Equal(t, enums.ShipmentStatusPending, shipment.Status)
	require.NotNil(t, f.repo.created)
	require.Len(t, f.repo.events, 1)
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventShipmentUpdated, f.outbox.events[0].EventType)

	require.Len(t, f.orders.fulfillments, 1)
	assert.Equal(t, "swiftship", f.orders.fulfillments[0].Carrier)
	assert.Equal(t, "TRK-001", f.orders.fulfillments[0].TrackingNumber)
}

func TestCreateShipmentProviderFailureLeavesNoRow(t *testing.T) {
	f := newTrackerFixture(t, nil)
	f.carrier.createErr = pkgerrors.New(pkgerrors.CodeProvider, "carrier timeout")

	_, err := f.tracker.CreateShipment(context.Background(), CreateShipmentInput{
		StoreID:  uuid.New(),
		OrderID:  uuid.New(),
		Provider: "swiftship",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProvider))
	assert.Nil(t, f.repo.created)
	assert.Empty(t, f.outbox.events)
}

func TestCreateShipmentCompensatesPersistFailure(t *testing.T) {
	f := newTrackerFixture(t, nil)
	f.repo.createErr = errors.New("connection reset")

	_, err := f.tracker.CreateShipment(context.Background(), CreateShipmentInput{
		StoreID:  uuid.New(),
		OrderID:  uuid.New(),
		Provider: "swiftship",
	})
	require.Error(t, err)
	// The booked consignment was voided.
	assert.Equal(t, []string{"cons-001"}, f.carrier.cancelled)
}

func TestCancelRequiresNonTerminalState(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusDelivered, 0)
	f := newTrackerFixture(t, shipment)

	err := f.tracker.Cancel(context.Background(), shipment.StoreID, shipment.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, f.carrier.cancelled)
}

func TestCancelProviderFirst(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusInTransit, 0)
	f := newTrackerFixture(t, shipment)

	require.NoError(t, f.tracker.Cancel(context.Background(), shipment.StoreID, shipment.ID))

	assert.Equal(t, []string{"cons-001"}, f.carrier.cancelled)
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, enums.ShipmentStatusCancelled, f.repo.updates[0].Status)
	require.NotNil(t, f.repo.updates[0].CancelledAt)
	require.Len(t, f.outbox.events, 1)
}

func TestCancelProviderFailureKeepsLocalState(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusInTransit, 0)
	f := newTrackerFixture(t, shipment)
	f.carrier.cancelErr = pkgerrors.New(pkgerrors.CodeProvider, "carrier refused")

	err := f.tracker.Cancel(context.Background(), shipment.StoreID, shipment.ID)
	require.Error(t, err)
	assert.Empty(t, f.repo.updates)
	assert.Equal(t, enums.ShipmentStatusInTransit, f.repo.shipment.Status)
}

func TestHandleEventAppendsTimeline(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusPickedUp, 0)
	f := newTrackerFixture(t, shipment)

	err := f.tracker.HandleEvent(context.Background(), "swiftship", carrierEvent(enums.ShipmentStatusInTransit))
	require.NoError(t, err)

	require.Len(t, f.repo.events, 1)
	assert.Equal(t, "in_transit", f.repo.events[0].Status)
	assert.Equal(t, "Lagos Hub", f.repo.events[0].Location)
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, enums.ShipmentStatusInTransit, f.repo.updates[0].Status)

	require.Len(t, f.outbox.events, 1)
	payload, ok := f.outbox.events[0].Data.(payloads.ShipmentUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, enums.ShipmentStatusInTransit, payload.Status)
}

func TestHandleEventDuplicateEventID(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusPickedUp, 0)
	f := newTrackerFixture(t, shipment)
	event := carrierEvent(enums.ShipmentStatusInTransit)

	require.NoError(t, f.tracker.HandleEvent(context.Background(), "swiftship", event))

	err := f.tracker.HandleEvent(context.Background(), "swiftship", event)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))
	assert.Len(t, f.repo.events, 1)
}

func TestHandleEventPickedUpMarksOrderShipped(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusPending, 0)
	f := newTrackerFixture(t, shipment)

	err := f.tracker.HandleEvent(context.Background(), "swiftship", carrierEvent(enums.ShipmentStatusPickedUp))
	require.NoError(t, err)

	require.Len(t, f.repo.updates, 1)
	require.NotNil(t, f.repo.updates[0].PickedUpAt)
	require.Len(t, f.orders.transitions, 1)
	assert.Equal(t, enums.OrderStatusShipped, f.orders.transitions[0].ToStatus)
}

func TestDeliveredCODSettlesExactlyOnce(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusOutForDelivery, 12900)
	f := newTrackerFixture(t, shipment)

	err := f.tracker.HandleEvent(context.Background(), "swiftship", carrierEvent(enums.ShipmentStatusDelivered))
	require.NoError(t, err)

	// Cash settled once: collected flag flipped, payment marked, event emitted.
	assert.True(t, f.repo.shipment.CODCollected)
	require.NotNil(t, f.repo.shipment.CODSettledAt)
	require.Len(t, f.payments.calls, 1)
	assert.Equal(t, shipment.OrderID, f.payments.calls[0])

	var settled int
	for _, event := range f.outbox.events {
		if event.EventType == enums.EventShipmentCODSettled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)

	// The order was moved to delivered.
	require.Len(t, f.orders.transitions, 1)
	assert.Equal(t, enums.OrderStatusDelivered, f.orders.transitions[0].ToStatus)

	// A redelivered event with a fresh id settles nothing further.
	err = f.tracker.HandleEvent(context.Background(), "swiftship", carrierEvent(enums.ShipmentStatusDelivered))
	require.NoError(t, err)
	assert.Len(t, f.payments.calls, 1)
}

func TestDeliveredCODRecoversLostSettlement(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusOutForDelivery, 12900)
	f := newTrackerFixture(t, shipment)
	f.payments.failNext = errors.New("payments unavailable")
	event := carrierEvent(enums.ShipmentStatusDelivered)

	err := f.tracker.HandleEvent(context.Background(), "swiftship", event)
	require.Error(t, err)
	// The collected flag committed but the payment update was lost.
	assert.True(t, f.repo.shipment.CODCollected)
	assert.Empty(t, f.payments.calls)

	// The carrier retries the same event and the settlement lands.
	require.NoError(t, f.tracker.HandleEvent(context.Background(), "swiftship", event))
	require.Len(t, f.payments.calls, 1)
	assert.Equal(t, shipment.OrderID, f.payments.calls[0])
}

func TestManualCollectCODDoubleRejected(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusDelivered, 12900)
	f := newTrackerFixture(t, shipment)

	require.NoError(t, f.tracker.CollectCOD(context.Background(), shipment.StoreID, shipment.ID))
	require.Len(t, f.payments.calls, 1)

	err := f.tracker.CollectCOD(context.Background(), shipment.StoreID, shipment.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))
	assert.Len(t, f.payments.calls, 1)
}

func TestCollectCODRejectsPrepaidShipment(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusDelivered, 0)
	f := newTrackerFixture(t, shipment)

	err := f.tracker.CollectCOD(context.Background(), shipment.StoreID, shipment.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.payments.calls)
}

func TestDeliveredPrepaidSkipsSettlement(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusOutForDelivery, 0)
	f := newTrackerFixture(t, shipment)

	err := f.tracker.HandleEvent(context.Background(), "swiftship", carrierEvent(enums.ShipmentStatusDelivered))
	require.NoError(t, err)
	assert.Empty(t, f.payments.calls)
	assert.False(t, f.repo.shipment.CODCollected)
}

func TestHandleEventUnknownConsignmentReleasesGuard(t *testing.T) {
	f := newTrackerFixture(t, nil)
	event := carrierEvent(enums.ShipmentStatusInTransit)

	err := f.tracker.HandleEvent(context.Background(), "swiftship", event)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	// The shipment appears later; the same event id can retry.
	f.repo.shipment = testShipment(enums.ShipmentStatusPickedUp, 0)
	require.NoError(t, f.tracker.HandleEvent(context.Background(), "swiftship", event))
}

func TestGetTrackingProxiesCarrier(t *testing.T) {
	shipment := testShipment(enums.ShipmentStatusInTransit, 0)
	f := newTrackerFixture(t, shipment)
	f.carrier.tracking = &providers.TrackingInfo{
		ConsignmentID: "cons-001",
		Status:        enums.ShipmentStatusInTransit,
		Checkpoints: []providers.Checkpoint{
			{Status: enums.ShipmentStatusPickedUp, Location: "Ikeja"},
		},
	}

	info, err := f.tracker.GetTracking(context.Background(), shipment.StoreID, shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusInTransit, info.Status)
	require.Len(t, info.Checkpoints, 1)
}

func TestCalculateRateDefaultsToSoleCarrier(t *testing.T) {
	f := newTrackerFixture(t, nil)
	f.carrier.quote = &providers.RateQuote{
		Carrier:      "swiftship",
		ServiceLevel: "standard",
		CostCents:    1500,
		ETADays:      2,
	}

	quote, err := f.tracker.CalculateRate(context.Background(), "", providers.RateRequest{WeightGrams: 900})
	require.NoError(t, err)
	assert.Equal(t, 1500, quote.CostCents)

	_, err = f.tracker.CalculateRate(context.Background(), "unknown", providers.RateRequest{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
