package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wovera/storefront-backend/internal/orders"
	"github.com/wovera/storefront-backend/internal/payments/providers"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/redis"
	"github.com/wovera/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderUpdater interface {
	UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, input orders.PaymentUpdateInput) error
}

// Engine reconciles provider payment events against orders. It is the
// only writer of payment transactions; orders learn about money strictly
// through the orders service payment update, bound to the engine's
// transaction.
type Engine interface {
	Initiate(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.PaymentTransaction, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error
	HandleEvent(ctx context.Context, provider string, event *providers.WebhookEvent) error
	Verify(ctx context.Context, storeID, txnID uuid.UUID, expectedAmountCents *int) (*models.PaymentTransaction, error)
	MarkOrderPaid(ctx context.Context, storeID, orderID uuid.UUID, amountCents int) error
}

type engine struct {
	repo     Repository
	orders   orderUpdater
	adapters map[string]providers.Adapter
	idem     redis.IdempotencyStore
	idemTTL  time.Duration
	tx       txRunner
	logg     *logger.Logger
}

// NewEngine wires the reconciliation engine. Adapters are keyed by their
// Name(); the payment method on the order selects which one serves it.
func NewEngine(
	repo Repository,
	orderSvc orderUpdater,
	adapters []providers.Adapter,
	idem redis.IdempotencyStore,
	idemTTL time.Duration,
	tx txRunner,
	logg *logger.Logger,
) (Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one payment adapter required")
	}
	if idem == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	byName := make(map[string]providers.Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil || adapter.Name() == "" {
			return nil, fmt.Errorf("payment adapter without a name")
		}
		byName[adapter.Name()] = adapter
	}
	if idemTTL <= 0 {
		idemTTL = 720 * time.Hour
	}
	return &engine{
		repo:     repo,
		orders:   orderSvc,
		adapters: byName,
		idem:     idem,
		idemTTL:  idemTTL,
		tx:       tx,
		logg:     logg,
	}, nil
}

var methodProviders = map[enums.PaymentMethod]string{
	enums.PaymentMethodCOD:    "cod",
	enums.PaymentMethodWallet: "paywave",
}

// Initiate opens the payment leg for a new order on the caller's
// transaction. The provider reference starts as the locally generated id;
// gateways that assign their own overwrite it in the adapter result.
func (e *engine) Initiate(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.PaymentTransaction, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	providerName, ok := methodProviders[order.PaymentMethod]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("no payment provider for method %q", order.PaymentMethod))
	}
	adapter, ok := e.adapters[providerName]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("payment adapter %q not configured", providerName))
	}

	localID := providers.LocalTxnID(providerName, order.ID)
	result, err := adapter.Initiate(ctx, order, localID)
	if err != nil {
		return nil, err
	}
	providerTxnID := result.ProviderTxnID
	if providerTxnID == "" {
		providerTxnID = localID
	}

	txn := &models.PaymentTransaction{
		StoreID:       order.StoreID,
		OrderID:       order.ID,
		Provider:      providerName,
		ProviderTxnID: providerTxnID,
		AmountCents:   order.TotalCents,
		Status:        enums.TransactionStatusInitiated,
		InitiatedAt:   time.Now().UTC(),
		Version:       1,
	}
	if err := e.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// HandleWebhook authenticates a raw provider callback and feeds it
// through HandleEvent.
func (e *engine) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error {
	adapter, ok := e.adapters[provider]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound,
			fmt.Sprintf("unknown payment provider %q", provider))
	}
	event, err := adapter.HandleWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}
	return e.HandleEvent(ctx, provider, event)
}

// HandleEvent applies an authenticated provider event. Duplicates are
// stopped twice over: a redis SetNX guard on the event id catches raw
// redelivery, and the transaction's terminal status catches semantic
// replays with fresh event ids.
func (e *engine) HandleEvent(ctx context.Context, provider string, event *providers.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider event required")
	}
	if event.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider event id required")
	}
	key := e.idem.WebhookKey(provider, event.EventID)
	fresh, err := e.idem.SetNX(ctx, key, "1", e.idemTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "webhook dedup check")
	}
	if !fresh {
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "event already processed").
			WithDetails(map[string]any{"event_id": event.EventID})
	}

	if err := e.applyEvent(ctx, provider, event); err != nil {
		// Release the guard on transient failures so the provider's
		// retry can land. Replays of settled work must stay blocked.
		if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
			if delErr := e.idem.Del(ctx, key); delErr != nil {
				e.logg.Error(ctx, "release webhook dedup key failed", delErr)
			}
		}
		return err
	}
	return nil
}

func (e *engine) applyEvent(ctx context.Context, provider string, event *providers.WebhookEvent) error {
	txn, err := e.correlate(ctx, provider, event.ProviderTxnID)
	if err != nil {
		return err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"provider":       provider,
		"transaction_id": txn.ID.String(),
		"event_id":       event.EventID,
		"event_status":   event.Status.String(),
	})

	if txn.Status.IsTerminal() {
		// Keep the audit trail complete even for late arrivals.
		if err := e.repo.AppendEvent(ctx, auditRow(txn, event)); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "transaction already settled").
			WithDetails(map[string]any{"status": txn.Status})
	}

	if event.Status == enums.TransactionStatusInitiated {
		// Progress pings carry no state change worth guarding.
		return e.repo.AppendEvent(ctx, auditRow(txn, event))
	}

	now := time.Now().UTC()
	update := StatusUpdate{Status: event.Status}
	switch event.Status {
	case enums.TransactionStatusCompleted:
		update.CompletedAt = &now
	case enums.TransactionStatusFailed:
		update.FailedAt = &now
	case enums.TransactionStatusRefunded:
		update.RefundedAt = &now
	default:
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown transaction status %q", event.Status))
	}

	amount := event.AmountCents
	if amount == 0 {
		amount = txn.AmountCents
	}

	// The terminal flip and the order's payment move commit together so
	// a failure in either leaves the event fully unapplied for retry.
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		applied, err := repo.UpdateVersioned(ctx, txn.ID, txn.Version, update)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction was modified concurrently")
		}
		if err := repo.AppendEvent(ctx, auditRow(txn, event)); err != nil {
			return err
		}
		return e.orders.UpdatePaymentStatusTx(ctx, tx, orders.PaymentUpdateInput{
			StoreID:       txn.StoreID,
			OrderID:       txn.OrderID,
			PaymentStatus: paymentStatusFor(event.Status),
			Provider:      provider,
			AmountCents:   amount,
			TransactionID: &txn.ID,
		})
	})
	if err != nil {
		return err
	}

	e.logg.Info(logCtx, "payment event applied")
	return nil
}

// correlate finds the transaction a provider event refers to. Provider
// echoed ids match directly; otherwise the order id embedded in the
// locally generated reference is the fallback.
func (e *engine) correlate(ctx context.Context, provider, providerTxnID string) (*models.PaymentTransaction, error) {
	txn, err := e.repo.FindByProviderRef(ctx, provider, providerTxnID)
	if err == nil {
		return txn, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	orderID, ok := providers.OrderIDFromLocalTxnID(provider, providerTxnID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no transaction matches provider reference").
			WithDetails(map[string]any{"provider_txn_id": providerTxnID})
	}
	return e.repo.FindLatestByOrder(ctx, orderID)
}

// Verify cross-checks a transaction against the provider's own record.
// A completed answer from the provider settles a still-open transaction;
// any amount disagreement is a hard verification failure.
func (e *engine) Verify(ctx context.Context, storeID, txnID uuid.UUID, expectedAmountCents *int) (*models.PaymentTransaction, error) {
	txn, err := e.repo.FindByID(ctx, storeID, txnID)
	if err != nil {
		return nil, err
	}
	adapter, ok := e.adapters[txn.Provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("payment adapter %q not configured", txn.Provider))
	}
	result, err := adapter.Verify(ctx, txn.ProviderTxnID)
	if err != nil {
		return nil, err
	}

	if expectedAmountCents != nil && result.AmountCents != *expectedAmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeVerificationFailed, "provider amount mismatch").
			WithDetails(map[string]any{
				"expected_cents": *expectedAmountCents,
				"provider_cents": result.AmountCents,
			})
	}
	if result.AmountCents != 0 && result.AmountCents != txn.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeVerificationFailed, "provider amount mismatch").
			WithDetails(map[string]any{
				"transaction_cents": txn.AmountCents,
				"provider_cents":    result.AmountCents,
			})
	}

	if !txn.Status.IsTerminal() && result.Status != txn.Status && result.Status != enums.TransactionStatusInitiated {
		event := &providers.WebhookEvent{
			EventID:       "verify-" + uuid.NewString(),
			ProviderTxnID: txn.ProviderTxnID,
			Status:        result.Status,
			AmountCents:   result.AmountCents,
			OccurredAt:    time.Now().UTC(),
		}
		if err := e.applyEvent(ctx, txn.Provider, event); err != nil {
			return nil, err
		}
		return e.repo.FindByID(ctx, storeID, txnID)
	}
	return txn, nil
}

// MarkOrderPaid settles an order's open transaction out of band. It backs
// cash collection at delivery, where the money event originates from
// logistics rather than a gateway callback.
func (e *engine) MarkOrderPaid(ctx context.Context, storeID, orderID uuid.UUID, amountCents int) error {
	txn, err := e.repo.FindLatestByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if txn.StoreID != storeID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	if txn.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "transaction already settled").
			WithDetails(map[string]any{"status": txn.Status})
	}

	amount := amountCents
	if amount == 0 {
		amount = txn.AmountCents
	}

	now := time.Now().UTC()
	return e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		applied, err := repo.UpdateVersioned(ctx, txn.ID, txn.Version, StatusUpdate{
			Status:      enums.TransactionStatusCompleted,
			CompletedAt: &now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction was modified concurrently")
		}
		if err := repo.AppendEvent(ctx, &models.PaymentTransactionEvent{
			TransactionID: txn.ID,
			Provider:      txn.Provider,
			EventType:     "payment.collected",
			Status:        enums.TransactionStatusCompleted.String(),
			Payload:       types.JSONMap{"amount_cents": amountCents},
		}); err != nil {
			return err
		}
		return e.orders.UpdatePaymentStatusTx(ctx, tx, orders.PaymentUpdateInput{
			StoreID:       txn.StoreID,
			OrderID:       txn.OrderID,
			PaymentStatus: enums.PaymentStatusPaid,
			Provider:      txn.Provider,
			AmountCents:   amount,
			TransactionID: &txn.ID,
		})
	})
}

func paymentStatusFor(status enums.TransactionStatus) enums.PaymentStatus {
	switch status {
	case enums.TransactionStatusCompleted:
		return enums.PaymentStatusPaid
	case enums.TransactionStatusRefunded:
		return enums.PaymentStatusRefunded
	default:
		return enums.PaymentStatusFailed
	}
}

func auditRow(txn *models.PaymentTransaction, event *providers.WebhookEvent) *models.PaymentTransactionEvent {
	payload := types.JSONMap{}
	if len(event.Raw) > 0 {
		if err := json.Unmarshal(event.Raw, &payload); err != nil {
			payload = types.JSONMap{"raw": string(event.Raw)}
		}
	}
	payload["event_id"] = event.EventID
	return &models.PaymentTransactionEvent{
		TransactionID: txn.ID,
		Provider:      txn.Provider,
		EventType:     "payment." + event.Status.String(),
		Status:        event.Status.String(),
		Payload:       payload,
	}
}
