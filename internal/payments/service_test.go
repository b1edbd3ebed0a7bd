package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/internal/orders"
	"github.com/wovera/storefront-backend/internal/payments/providers"
	"github.com/wovera/storefront-backend/internal/payments/providers/cod"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
)

type stubPaymentsRepo struct {
	txn          *models.PaymentTransaction
	byRefMiss    bool
	events       []*models.PaymentTransactionEvent
	updates      []StatusUpdate
	updateResult *bool
	created      *models.PaymentTransaction
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPaymentsRepo) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	txn.ID = uuid.New()
	s.created = txn
	return nil
}

func (s *stubPaymentsRepo) FindByID(ctx context.Context, storeID, txnID uuid.UUID) (*models.PaymentTransaction, error) {
	if s.txn == nil || s.txn.ID != txnID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	clone := *s.txn
	return &clone, nil
}

func (s *stubPaymentsRepo) FindByProviderRef(ctx context.Context, provider, providerTxnID string) (*models.PaymentTransaction, error) {
	if s.byRefMiss || s.txn == nil || s.txn.ProviderTxnID != providerTxnID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	clone := *s.txn
	return &clone, nil
}

func (s *stubPaymentsRepo) FindLatestByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	if s.txn == nil || s.txn.OrderID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	clone := *s.txn
	return &clone, nil
}

func (s *stubPaymentsRepo) UpdateVersioned(ctx context.Context, txnID uuid.UUID, version int, update StatusUpdate) (bool, error) {
	s.updates = append(s.updates, update)
	if s.updateResult != nil {
		return *s.updateResult, nil
	}
	s.txn.Status = update.Status
	s.txn.Version++
	return true, nil
}

func (s *stubPaymentsRepo) AppendEvent(ctx context.Context, event *models.PaymentTransactionEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubOrderUpdater struct {
	inputs []orders.PaymentUpdateInput
	txs    []*gorm.DB
	err    error
}

func (s *stubOrderUpdater) UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, input orders.PaymentUpdateInput) error {
	if s.err != nil {
		return s.err
	}
	s.inputs = append(s.inputs, input)
	s.txs = append(s.txs, tx)
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

type stubTxRunner struct {
	last *gorm.DB
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.last = &gorm.DB{}
	return fn(s.last)
}

type staticAdapter struct {
	name   string
	verify *providers.VerifyResult
}

func (a *staticAdapter) Name() string { return a.name }

func (a *staticAdapter) Initiate(ctx context.Context, order *models.Order, localTxnID string) (*providers.InitiateResult, error) {
	return &providers.InitiateResult{ProviderTxnID: localTxnID}, nil
}

func (a *staticAdapter) Verify(ctx context.Context, providerTxnID string) (*providers.VerifyResult, error) {
	if a.verify == nil {
		return nil, errors.New("no verify result configured")
	}
	return a.verify, nil
}

func (a *staticAdapter) HandleWebhook(ctx context.Context, payload []byte, signature string) (*providers.WebhookEvent, error) {
	return nil, errors.New("not used")
}

type engineFixture struct {
	engine  Engine
	repo    *stubPaymentsRepo
	orders  *stubOrderUpdater
	idem    *stubIdemStore
	tx      *stubTxRunner
	paywave *staticAdapter
}

func newEngineFixture(t *testing.T, txn *models.PaymentTransaction) *engineFixture {
	t.Helper()
	f := &engineFixture{
		repo:    &stubPaymentsRepo{txn: txn},
		orders:  &stubOrderUpdater{},
		idem:    newStubIdemStore(),
		tx:      &stubTxRunner{},
		paywave: &staticAdapter{name: "paywave"},
	}
	logg := logger.New(logger.Options{ServiceName: "payments-test"})
	eng, err := NewEngine(
		f.repo,
		f.orders,
		[]providers.Adapter{f.paywave, cod.NewAdapter()},
		f.idem,
		time.Hour,
		f.tx,
		logg,
	)
	require.NoError(t, err)
	f.engine = eng
	return f
}

func openTxn() *models.PaymentTransaction {
	return &models.PaymentTransaction{
		ID:            uuid.New(),
		StoreID:       uuid.New(),
		OrderID:       uuid.New(),
		Provider:      "paywave",
		ProviderTxnID: "pw-ref-001",
		AmountCents:   12900,
		Status:        enums.TransactionStatusInitiated,
		InitiatedAt:   time.Now().UTC(),
		Version:       1,
	}
}

func completedEvent(txnRef string) *providers.WebhookEvent {
	return &providers.WebhookEvent{
		EventID:       "evt-" + uuid.NewString(),
		ProviderTxnID: txnRef,
		Status:        enums.TransactionStatusCompleted,
		AmountCents:   12900,
		OccurredAt:    time.Now().UTC(),
		Raw:           json.RawMessage(`{"status":"success"}`),
	}
}

func TestHandleEventCompletesTransaction(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)

	err := f.engine.HandleEvent(context.Background(), "paywave", completedEvent(txn.ProviderTxnID))
	require.NoError(t, err)

	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, enums.TransactionStatusCompleted, f.repo.updates[0].Status)
	require.NotNil(t, f.repo.updates[0].CompletedAt)
	require.Len(t, f.repo.events, 1)
	assert.Equal(t, "payment.completed", f.repo.events[0].EventType)

	require.Len(t, f.orders.inputs, 1)
	input := f.orders.inputs[0]
	assert.Equal(t, enums.PaymentStatusPaid, input.PaymentStatus)
	assert.Equal(t, txn.OrderID, input.OrderID)
	assert.Equal(t, 12900, input.AmountCents)
	require.NotNil(t, input.TransactionID)
	assert.Equal(t, txn.ID, *input.TransactionID)
}

func TestHandleEventSettlesInOneTransaction(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)

	require.NoError(t, f.engine.HandleEvent(context.Background(), "paywave", completedEvent(txn.ProviderTxnID)))

	// The order's payment move rides the same transaction as the terminal
	// flip, so neither can commit without the other.
	require.Len(t, f.orders.txs, 1)
	assert.Same(t, f.tx.last, f.orders.txs[0])
}

func TestHandleEventDuplicateEventID(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)
	event := completedEvent(txn.ProviderTxnID)

	require.NoError(t, f.engine.HandleEvent(context.Background(), "paywave", event))

	err := f.engine.HandleEvent(context.Background(), "paywave", event)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))
	// The replay never touched the transaction again.
	assert.Len(t, f.repo.updates, 1)
	assert.Len(t, f.orders.inputs, 1)
}

func TestHandleEventTerminalTransactionGuard(t *testing.T) {
	txn := openTxn()
	txn.Status = enums.TransactionStatusCompleted
	f := newEngineFixture(t, txn)

	err := f.engine.HandleEvent(context.Background(), "paywave", completedEvent(txn.ProviderTxnID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))

	// Late arrivals still land in the audit trail, nothing else moves.
	assert.Len(t, f.repo.events, 1)
	assert.Empty(t, f.repo.updates)
	assert.Empty(t, f.orders.inputs)
}

func TestHandleEventCorrelatesByEmbeddedOrderID(t *testing.T) {
	txn := openTxn()
	txn.ProviderTxnID = providers.LocalTxnID("paywave", txn.OrderID)
	f := newEngineFixture(t, txn)
	f.repo.byRefMiss = true

	// The provider echoes only the local reference for a different nonce,
	// so lookup falls back to the embedded order id.
	echoed := providers.LocalTxnID("paywave", txn.OrderID)
	err := f.engine.HandleEvent(context.Background(), "paywave", completedEvent(echoed))
	require.NoError(t, err)
	require.Len(t, f.orders.inputs, 1)
	assert.Equal(t, txn.OrderID, f.orders.inputs[0].OrderID)
}

func TestHandleEventUnknownReference(t *testing.T) {
	f := newEngineFixture(t, openTxn())
	f.repo.byRefMiss = true

	err := f.engine.HandleEvent(context.Background(), "paywave", completedEvent("no-such-ref"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHandleEventReleasesGuardOnFailure(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)
	f.orders.err = errors.New("orders unavailable")
	event := completedEvent(txn.ProviderTxnID)

	err := f.engine.HandleEvent(context.Background(), "paywave", event)
	require.Error(t, err)

	// The dedup key was released, so the provider retry can apply.
	f.orders.err = nil
	f.repo.txn.Status = enums.TransactionStatusInitiated
	require.NoError(t, f.engine.HandleEvent(context.Background(), "paywave", event))
	assert.Len(t, f.orders.inputs, 1)
}

func TestHandleEventVersionConflict(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)
	stale := false
	f.repo.updateResult = &stale

	err := f.engine.HandleEvent(context.Background(), "paywave", completedEvent(txn.ProviderTxnID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, f.orders.inputs)
}

func TestHandleEventFailedPayment(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)
	event := completedEvent(txn.ProviderTxnID)
	event.Status = enums.TransactionStatusFailed

	require.NoError(t, f.engine.HandleEvent(context.Background(), "paywave", event))
	require.Len(t, f.repo.updates, 1)
	require.NotNil(t, f.repo.updates[0].FailedAt)
	require.Len(t, f.orders.inputs, 1)
	assert.Equal(t, enums.PaymentStatusFailed, f.orders.inputs[0].PaymentStatus)
}

func TestMarkOrderPaid(t *testing.T) {
	txn := openTxn()
	txn.Provider = "cod"
	f := newEngineFixture(t, txn)

	err := f.engine.MarkOrderPaid(context.Background(), txn.StoreID, txn.OrderID, 12900)
	require.NoError(t, err)

	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, enums.TransactionStatusCompleted, f.repo.updates[0].Status)
	require.Len(t, f.orders.inputs, 1)
	assert.Equal(t, enums.PaymentStatusPaid, f.orders.inputs[0].PaymentStatus)
	assert.Equal(t, "cod", f.orders.inputs[0].Provider)
}

func TestMarkOrderPaidTwiceRejected(t *testing.T) {
	txn := openTxn()
	txn.Provider = "cod"
	f := newEngineFixture(t, txn)

	require.NoError(t, f.engine.MarkOrderPaid(context.Background(), txn.StoreID, txn.OrderID, 12900))

	err := f.engine.MarkOrderPaid(context.Background(), txn.StoreID, txn.OrderID, 12900)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))
	assert.Len(t, f.orders.inputs, 1)
}

func TestMarkOrderPaidWrongStore(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)

	err := f.engine.MarkOrderPaid(context.Background(), uuid.New(), txn.OrderID, 12900)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestInitiateCreatesOpenTransaction(t *testing.T) {
	f := newEngineFixture(t, nil)
	order := &models.Order{
		ID:            uuid.New(),
		StoreID:       uuid.New(),
		PaymentMethod: enums.PaymentMethodCOD,
		TotalCents:    5400,
	}

	txn, err := f.engine.Initiate(context.Background(), &gorm.DB{}, order)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, "cod", txn.Provider)
	assert.Equal(t, enums.TransactionStatusInitiated, txn.Status)
	assert.Equal(t, 5400, txn.AmountCents)

	// The generated reference carries the order id for later correlation.
	orderID, ok := providers.OrderIDFromLocalTxnID("cod", txn.ProviderTxnID)
	require.True(t, ok)
	assert.Equal(t, order.ID, orderID)
}

func TestInitiateUnknownMethod(t *testing.T) {
	f := newEngineFixture(t, nil)
	order := &models.Order{ID: uuid.New(), PaymentMethod: enums.PaymentMethod("barter")}

	_, err := f.engine.Initiate(context.Background(), &gorm.DB{}, order)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestVerifyAmountMismatch(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)
	f.paywave.verify = &providers.VerifyResult{
		ProviderTxnID: txn.ProviderTxnID,
		Status:        enums.TransactionStatusCompleted,
		AmountCents:   9900,
	}

	_, err := f.engine.Verify(context.Background(), txn.StoreID, txn.ID, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeVerificationFailed))
	assert.Empty(t, f.orders.inputs)
}

func TestVerifySettlesOpenTransaction(t *testing.T) {
	txn := openTxn()
	f := newEngineFixture(t, txn)
	f.paywave.verify = &providers.VerifyResult{
		ProviderTxnID: txn.ProviderTxnID,
		Status:        enums.TransactionStatusCompleted,
		AmountCents:   txn.AmountCents,
	}

	result, err := f.engine.Verify(context.Background(), txn.StoreID, txn.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, result.Status)
	require.Len(t, f.orders.inputs, 1)
	assert.Equal(t, enums.PaymentStatusPaid, f.orders.inputs[0].PaymentStatus)
}

func TestLocalTxnIDRoundTrip(t *testing.T) {
	orderID := uuid.New()
	txnID := providers.LocalTxnID("paywave", orderID)

	parsed, ok := providers.OrderIDFromLocalTxnID("paywave", txnID)
	require.True(t, ok)
	assert.Equal(t, orderID, parsed)

	_, ok = providers.OrderIDFromLocalTxnID("cod", txnID)
	assert.False(t, ok)

	_, ok = providers.OrderIDFromLocalTxnID("paywave", "paywave-not-a-uuid-000")
	assert.False(t, ok)
}
