package paywave

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wovera/storefront-backend/internal/payments/providers"
	"github.com/wovera/storefront-backend/pkg/config"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
)

// ProviderName is the identifier stored on transactions opened here.
const ProviderName = "paywave"

var (
	errBaseURLRequired       = errors.New("paywave base url is required")
	errMerchantIDRequired    = errors.New("paywave merchant id is required")
	errSecretRequired        = errors.New("paywave secret is required")
	errWebhookSecretRequired = errors.New("paywave webhook secret is required")
	errLoggerRequired        = errors.New("paywave logger is required")
)

var centsFactor = decimal.NewFromInt(100)

// Adapter talks to the Paywave wallet gateway over its REST API.
type Adapter struct {
	baseURL       string
	merchantID    string
	secret        string
	webhookSecret string
	httpClient    *http.Client
	logger        *logger.Logger
}

// NewAdapter validates the gateway credentials and builds the HTTP client
// with the configured timeout.
func NewAdapter(cfg config.PaywaveConfig, logg *logger.Logger) (*Adapter, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	merchantID := strings.TrimSpace(cfg.MerchantID)
	if merchantID == "" {
		return nil, errMerchantIDRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		baseURL:       baseURL,
		merchantID:    merchantID,
		secret:        secret,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logg,
	}, nil
}

// Name implements providers.Adapter.
func (a *Adapter) Name() string { return ProviderName }

type chargeRequest struct {
	MerchantID string `json:"merchant_id"`
	Reference  string `json:"reference"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	CheckoutURL   string `json:"checkout_url"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
}

// Initiate opens a charge on the gateway. The local transaction id is
// passed as the merchant reference so later webhooks can be correlated
// even when Paywave only echoes the reference.
func (a *Adapter) Initiate(ctx context.Context, order *models.Order, localTxnID string) (*providers.InitiateResult, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	body := chargeRequest{
		MerchantID: a.merchantID,
		Reference:  localTxnID,
		Amount:     centsToAmount(order.TotalCents),
		Currency:   "NGN",
	}
	var resp chargeResponse
	if err := a.post(ctx, "/v1/charges", body, &resp); err != nil {
		return nil, err
	}
	txnID := resp.TransactionID
	if txnID == "" {
		txnID = localTxnID
	}
	logCtx := a.logger.WithFields(ctx, map[string]any{
		"order_id":        order.ID.String(),
		"provider_txn_id": txnID,
	})
	a.logger.Info(logCtx, "paywave charge opened")
	return &providers.InitiateResult{
		ProviderTxnID: txnID,
		CheckoutURL:   resp.CheckoutURL,
	}, nil
}

// Verify fetches the gateway's authoritative record of a charge.
func (a *Adapter) Verify(ctx context.Context, providerTxnID string) (*providers.VerifyResult, error) {
	if providerTxnID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider transaction id is required")
	}
	var resp chargeResponse
	if err := a.get(ctx, "/v1/charges/"+providerTxnID, &resp); err != nil {
		return nil, err
	}
	cents, err := amountToCents(resp.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "parse paywave amount")
	}
	return &providers.VerifyResult{
		ProviderTxnID: resp.TransactionID,
		Status:        mapStatus(resp.Status),
		AmountCents:   cents,
	}, nil
}

type webhookPayload struct {
	EventID       string `json:"event_id"`
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	OccurredAt    string `json:"occurred_at"`
}

// HandleWebhook authenticates a Paywave callback with HMAC-SHA256 over
// the raw body and normalizes it. A bad signature is a hard reject.
func (a *Adapter) HandleWebhook(ctx context.Context, payload []byte, signature string) (*providers.WebhookEvent, error) {
	if !a.validSignature(payload, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeVerificationFailed, "paywave webhook signature mismatch")
	}
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paywave webhook")
	}
	if body.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paywave event id missing")
	}
	txnID := body.TransactionID
	if txnID == "" {
		txnID = body.Reference
	}
	if txnID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paywave transaction reference missing")
	}
	cents, err := amountToCents(body.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse paywave amount")
	}
	occurredAt := time.Now().UTC()
	if body.OccurredAt != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, body.OccurredAt); parseErr == nil {
			occurredAt = parsed
		}
	}
	return &providers.WebhookEvent{
		EventID:       body.EventID,
		ProviderTxnID: txnID,
		Status:        mapStatus(body.Status),
		AmountCents:   cents,
		OccurredAt:    occurredAt,
		Raw:           json.RawMessage(payload),
	}, nil
}

func (a *Adapter) validSignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (a *Adapter) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode paywave request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paywave request")
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paywave request")
	}
	return a.do(req, out)
}

func (a *Adapter) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+a.secret)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "paywave request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "read paywave response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeProvider,
			fmt.Sprintf("paywave returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"body": string(raw)})
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode paywave response")
	}
	return nil
}

// Amounts cross the wire as decimal strings; everything internal is cents.
func centsToAmount(cents int) string {
	return decimal.NewFromInt(int64(cents)).Div(centsFactor).StringFixed(2)
}

func amountToCents(amount string) (int, error) {
	if strings.TrimSpace(amount) == "" {
		return 0, nil
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, err
	}
	return int(parsed.Mul(centsFactor).Round(0).IntPart()), nil
}

func mapStatus(raw string) enums.TransactionStatus {
	switch strings.ToLower(raw) {
	case "success", "successful", "completed":
		return enums.TransactionStatusCompleted
	case "failed", "declined", "expired":
		return enums.TransactionStatusFailed
	case "refunded", "reversed":
		return enums.TransactionStatusRefunded
	default:
		return enums.TransactionStatusInitiated
	}
}
