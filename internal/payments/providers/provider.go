package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
)

// InitiateResult is what a gateway hands back when a payment is opened.
// CheckoutURL is empty for providers without a hosted page.
type InitiateResult struct {
	ProviderTxnID string
	CheckoutURL   string
}

// VerifyResult is the provider's authoritative view of a transaction,
// used to cross-check webhook claims before an order is marked paid.
type VerifyResult struct {
	ProviderTxnID string
	Status        enums.TransactionStatus
	AmountCents   int
}

// WebhookEvent is a provider callback normalized into engine terms.
// ProviderTxnID may be the provider's own reference or the locally
// generated one echoed back. Raw keeps the original payload for audit.
type WebhookEvent struct {
	EventID       string
	ProviderTxnID string
	Status        enums.TransactionStatus
	AmountCents   int
	OccurredAt    time.Time
	Raw           json.RawMessage
}

// Adapter is the contract every payment gateway integration satisfies.
// HandleWebhook must authenticate the payload before returning an event;
// an unauthenticated payload returns CodeVerificationFailed and nothing
// downstream runs.
type Adapter interface {
	Name() string
	Initiate(ctx context.Context, order *models.Order, localTxnID string) (*InitiateResult, error)
	Verify(ctx context.Context, providerTxnID string) (*VerifyResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// LocalTxnID builds the locally generated transaction reference used when
// a provider defers assigning its own. The order id sits in a fixed
// position so events that only echo this id can be correlated back.
func LocalTxnID(provider string, orderID uuid.UUID) string {
	return provider + "-" + orderID.String() + "-" + uuid.NewString()[:8]
}

// OrderIDFromLocalTxnID recovers the order id embedded by LocalTxnID.
// The match is positional, not a search: the id must start with the
// provider name and the uuid must occupy the next segment exactly.
func OrderIDFromLocalTxnID(provider, txnID string) (uuid.UUID, bool) {
	prefix := provider + "-"
	if len(txnID) < len(prefix)+36 {
		return uuid.Nil, false
	}
	if txnID[:len(prefix)] != prefix {
		return uuid.Nil, false
	}
	candidate := txnID[len(prefix) : len(prefix)+36]
	parsed, err := uuid.Parse(candidate)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}
