package paywave

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wovera/storefront-backend/pkg/config"
	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
)

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(config.PaywaveConfig{
		BaseURL:       baseURL,
		MerchantID:    "merchant-1",
		Secret:        "api-secret",
		WebhookSecret: "hook-secret",
		Timeout:       2 * time.Second,
	}, logger.New(logger.Options{ServiceName: "paywave-test"}))
	require.NoError(t, err)
	return adapter
}

func sign(t *testing.T, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestInitiatePostsCharge(t *testing.T) {
	var captured chargeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/charges", r.URL.Path)
		require.Equal(t, "Bearer api-secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(chargeResponse{
			TransactionID: "pw-12345",
			CheckoutURL:   "https://pay.example/checkout/pw-12345",
			Status:        "pending",
		})
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	order := &models.Order{ID: uuid.New(), TotalCents: 12950}

	result, err := adapter.Initiate(context.Background(), order, "paywave-local-ref")
	require.NoError(t, err)
	assert.Equal(t, "pw-12345", result.ProviderTxnID)
	assert.Equal(t, "https://pay.example/checkout/pw-12345", result.CheckoutURL)
	assert.Equal(t, "merchant-1", captured.MerchantID)
	assert.Equal(t, "paywave-local-ref", captured.Reference)
	assert.Equal(t, "129.50", captured.Amount)
}

func TestInitiateFallsBackToLocalReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResponse{Status: "pending"})
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	result, err := adapter.Initiate(context.Background(), &models.Order{ID: uuid.New()}, "local-ref")
	require.NoError(t, err)
	assert.Equal(t, "local-ref", result.ProviderTxnID)
}

func TestVerifyParsesDecimalAmount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/charges/pw-12345", r.URL.Path)
		json.NewEncoder(w).Encode(chargeResponse{
			TransactionID: "pw-12345",
			Status:        "success",
			Amount:        "129.00",
		})
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	result, err := adapter.Verify(context.Background(), "pw-12345")
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, result.Status)
	assert.Equal(t, 12900, result.AmountCents)
}

func TestProviderErrorMapsToProviderCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"merchant suspended"}`, http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	_, err := adapter.Verify(context.Background(), "pw-12345")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProvider))
}

func TestHandleWebhookAcceptsSignedPayload(t *testing.T) {
	adapter := newTestAdapter(t, "https://pay.example")
	payload := []byte(`{"event_id":"evt-1","transaction_id":"pw-12345","status":"success","amount":"129.00","occurred_at":"2026-08-01T10:00:00Z"}`)

	event, err := adapter.HandleWebhook(context.Background(), payload, sign(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.EventID)
	assert.Equal(t, "pw-12345", event.ProviderTxnID)
	assert.Equal(t, enums.TransactionStatusCompleted, event.Status)
	assert.Equal(t, 12900, event.AmountCents)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), event.OccurredAt)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	adapter := newTestAdapter(t, "https://pay.example")
	payload := []byte(`{"event_id":"evt-1","transaction_id":"pw-12345","status":"success"}`)

	_, err := adapter.HandleWebhook(context.Background(), payload, "deadbeef")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeVerificationFailed))

	_, err = adapter.HandleWebhook(context.Background(), payload, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeVerificationFailed))
}

func TestHandleWebhookUsesReferenceWhenTxnIDMissing(t *testing.T) {
	adapter := newTestAdapter(t, "https://pay.example")
	payload := []byte(`{"event_id":"evt-2","reference":"paywave-local-ref","status":"failed","amount":"50.00"}`)

	event, err := adapter.HandleWebhook(context.Background(), payload, sign(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "paywave-local-ref", event.ProviderTxnID)
	assert.Equal(t, enums.TransactionStatusFailed, event.Status)
	assert.Equal(t, 5000, event.AmountCents)
}

func TestStatusMapping(t *testing.T) {
	cases := map[string]enums.TransactionStatus{
		"success":    enums.TransactionStatusCompleted,
		"SUCCESSFUL": enums.TransactionStatusCompleted,
		"failed":     enums.TransactionStatusFailed,
		"declined":   enums.TransactionStatusFailed,
		"refunded":   enums.TransactionStatusRefunded,
		"reversed":   enums.TransactionStatusRefunded,
		"pending":    enums.TransactionStatusInitiated,
	}
	for raw, want := range cases {
		assert.Equal(t, want, mapStatus(raw), raw)
	}
}

func TestNewAdapterValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "paywave-test"})

	_, err := NewAdapter(config.PaywaveConfig{}, logg)
	require.Error(t, err)

	_, err = NewAdapter(config.PaywaveConfig{
		BaseURL:    "https://pay.example",
		MerchantID: "m-1",
		Secret:     "s",
	}, logg)
	require.ErrorIs(t, err, errWebhookSecretRequired)

	_, err = NewAdapter(config.PaywaveConfig{
		BaseURL:       "https://pay.example",
		MerchantID:    "m-1",
		Secret:        "s",
		WebhookSecret: "w",
	}, nil)
	require.ErrorIs(t, err, errLoggerRequired)
}
