package cod

import (
	"context"

	"github.com/wovera/storefront-backend/internal/payments/providers"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
)

// ProviderName is the identifier stored on cash-on-delivery transactions.
const ProviderName = "cod"

// Adapter is the cash-on-delivery pseudo-gateway. There is no remote
// party; money moves when the courier collects, so Initiate just echoes
// the local reference and collection is driven by logistics.
type Adapter struct{}

func NewAdapter() *Adapter { return &Adapter{} }

// Name implements providers.Adapter.
func (a *Adapter) Name() string { return ProviderName }

// Initiate accepts the charge locally. The local transaction id is the
// provider reference; settlement happens at delivery.
func (a *Adapter) Initiate(ctx context.Context, order *models.Order, localTxnID string) (*providers.InitiateResult, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	return &providers.InitiateResult{ProviderTxnID: localTxnID}, nil
}

// Verify reports the transaction as still open. Cash collection is
// recorded through the engine directly, not queried from a gateway.
func (a *Adapter) Verify(ctx context.Context, providerTxnID string) (*providers.VerifyResult, error) {
	if providerTxnID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider transaction id is required")
	}
	return &providers.VerifyResult{
		ProviderTxnID: providerTxnID,
		Status:        enums.TransactionStatusInitiated,
	}, nil
}

// HandleWebhook always rejects; cash on delivery has no webhook source.
func (a *Adapter) HandleWebhook(ctx context.Context, payload []byte, signature string) (*providers.WebhookEvent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash on delivery has no webhook events")
}
