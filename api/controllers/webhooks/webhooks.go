package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wovera/storefront-backend/api/responses"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/metrics"
)

// maxWebhookBody bounds provider callback payloads.
const maxWebhookBody = 1 << 20

type webhookHandler interface {
	HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) error
}

// PaymentWebhook ingests a payment provider callback. Replays come back
// as success so providers stop retrying.
func PaymentWebhook(engine webhookHandler, provider, signatureHeader string, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return handleProviderWebhook(engine, provider, signatureHeader, wm, logg)
}

// ShipmentWebhook ingests a carrier tracking callback.
func ShipmentWebhook(tracker webhookHandler, provider, signatureHeader string, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return handleProviderWebhook(tracker, provider, signatureHeader, wm, logg)
}

func handleProviderWebhook(handler webhookHandler, provider, signatureHeader string, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProvider(ctx, provider)
		}

		if handler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read request body"))
			return
		}

		signature := r.Header.Get(signatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeVerificationFailed, "signature header missing"))
			return
		}

		start := time.Now()
		err = handler.HandleWebhook(ctx, provider, payload, signature)
		wm.ObserveDuration(provider, time.Since(start))

		switch {
		case err == nil:
			wm.IncProcessed(provider)
			responses.WriteSuccess(w, nil)
		case pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed):
			wm.IncDuplicate(provider)
			responses.WriteSuccess(w, nil)
		default:
			wm.IncFailure(provider)
			responses.WriteError(ctx, logg, w, err)
		}
	}
}
