package swiftship

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

	"github.com/wovera/storefront-backend/internal/logistics/providers"
	"github.com/wovera/storefront-backend/pkg/config"
	"github.com/wovera/storefront-backend/pkg/enums"
	pkgerrors "github.com/wovera/storefront-backend/pkg/errors"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/types"
)

// ProviderName is the identifier stored on shipments booked here.
const ProviderName = "swiftship"

var (
	errBaseURLRequired       = errors.New("swiftship base url is required")
	errAPIKeyRequired        = errors.New("swiftship api key is required")
	errWebhookSecretRequired = errors.New("swiftship webhook secret is required")
	errLoggerRequired        = errors.New("swiftship logger is required")
)

var centsFactor = decimal.NewFromInt(100)

// Adapter talks to the Swiftship courier API.
type Adapter struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
	logger        *logger.Logger
}

// NewAdapter validates the courier credentials and builds the HTTP client
// with the configured timeout.
func NewAdapter(cfg config.SwiftshipConfig, logg *logger.Logger) (*Adapter, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
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
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logg,
	}, nil
}

// Name implements providers.Adapter.
func (a *Adapter) Name() string { return ProviderName }

type addressPayload struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

func toAddressPayload(addr types.Address) addressPayload {
	payload := addressPayload{
		Line1:   addr.Line1,
		City:    addr.City,
		State:   addr.State,
		Country: addr.Country,
		Phone:   addr.Phone,
	}
	if addr.Line2 != nil {
		payload.Line2 = *addr.Line2
	}
	return payload
}

type rateRequestPayload struct {
	Pickup      addressPayload `json:"pickup"`
	Delivery    addressPayload `json:"delivery"`
	WeightGrams int            `json:"weight_grams"`
	CODAmount   string         `json:"cod_amount,omitempty"`
}

type rateResponsePayload struct {
	ServiceLevel string `json:"service_level"`
	Cost         string `json:"cost"`
	ETADays      int    `json:"eta_days"`
}

// CalculateRate quotes a consignment without booking it.
func (a *Adapter) CalculateRate(ctx context.Context, req providers.RateRequest) (*providers.RateQuote, error) {
	body := rateRequestPayload{
		Pickup:      toAddressPayload(req.PickupAddress),
		Delivery:    toAddressPayload(req.DeliveryAddress),
		WeightGrams: req.WeightGrams,
	}
	if req.CODAmountCents > 0 {
		body.CODAmount = centsToAmount(req.CODAmountCents)
	}
	var resp rateResponsePayload
	if err := a.post(ctx, "/v1/rates", body, &resp); err != nil {
		return nil, err
	}
	cost, err := amountToCents(resp.Cost)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "parse swiftship rate")
	}
	return &providers.RateQuote{
		Carrier:      ProviderName,
		ServiceLevel: resp.ServiceLevel,
		CostCents:    cost,
		ETADays:      resp.ETADays,
	}, nil
}

type shipmentRequestPayload struct {
	Reference   string         `json:"reference"`
	Pickup      addressPayload `json:"pickup"`
	Delivery    addressPayload `json:"delivery"`
	Description string         `json:"description,omitempty"`
	WeightGrams int            `json:"weight_grams"`
	CODAmount   string         `json:"cod_amount,omitempty"`
}

type shipmentResponsePayload struct {
	ConsignmentID  string `json:"consignment_id"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	Cost           string `json:"cost"`
}

// CreateShipment books a consignment. The courier assigns the
// consignment id; without one the booking is treated as failed.
func (a *Adapter) CreateShipment(ctx context.Context, req providers.ShipmentRequest) (*providers.ShipmentResult, error) {
	body := shipmentRequestPayload{
		Reference:   req.Reference,
		Pickup:      toAddressPayload(req.PickupAddress),
		Delivery:    toAddressPayload(req.DeliveryAddress),
		Description: req.PackageDesc,
		WeightGrams: req.WeightGrams,
	}
	if req.CODAmountCents > 0 {
		body.CODAmount = centsToAmount(req.CODAmountCents)
	}
	var resp shipmentResponsePayload
	if err := a.post(ctx, "/v1/shipments", body, &resp); err != nil {
		return nil, err
	}
	if resp.ConsignmentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "swiftship booking returned no consignment id")
	}
	cost, err := amountToCents(resp.Cost)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "parse swiftship cost")
	}
	logCtx := a.logger.WithFields(ctx, map[string]any{
		"reference":      req.Reference,
		"consignment_id": resp.ConsignmentID,
	})
	a.logger.Info(logCtx, "swiftship consignment booked")
	return &providers.ShipmentResult{
		ConsignmentID:  resp.ConsignmentID,
		TrackingNumber: resp.TrackingNumber,
		TrackingURL:    resp.TrackingURL,
		CostCents:      cost,
	}, nil
}

type trackingResponsePayload struct {
	ConsignmentID string               `json:"consignment_id"`
	Status        string               `json:"status"`
	Checkpoints   []checkpointPayload  `json:"checkpoints"`
}

type checkpointPayload struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	Location    string `json:"location"`
	OccurredAt  string `json:"occurred_at"`
}

// GetTracking fetches the courier's current timeline for a consignment.
func (a *Adapter) GetTracking(ctx context.Context, consignmentID string) (*providers.TrackingInfo, error) {
	if consignmentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "consignment id is required")
	}
	var resp trackingResponsePayload
	if err := a.get(ctx, "/v1/shipments/"+consignmentID+"/tracking", &resp); err != nil {
		return nil, err
	}
	info := &providers.TrackingInfo{
		ConsignmentID: resp.ConsignmentID,
		Status:        mapStatus(resp.Status),
	}
	for _, cp := range resp.Checkpoints {
		occurredAt := time.Now().UTC()
		if parsed, err := time.Parse(time.RFC3339, cp.OccurredAt); err == nil {
			occurredAt = parsed
		}
		info.Checkpoints = append(info.Checkpoints, providers.Checkpoint{
			Status:      mapStatus(cp.Status),
			Description: cp.Description,
			Location:    cp.Location,
			OccurredAt:  occurredAt,
		})
	}
	return info, nil
}

// CancelShipment asks the courier to void a consignment.
func (a *Adapter) CancelShipment(ctx context.Context, consignmentID string) error {
	if consignmentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "consignment id is required")
	}
	return a.post(ctx, "/v1/shipments/"+consignmentID+"/cancel", struct{}{}, nil)
}

type webhookPayload struct {
	EventID       string `json:"event_id"`
	ConsignmentID string `json:"consignment_id"`
	Status        string `json:"status"`
	Description   string `json:"description"`
	Location      string `json:"location"`
	OccurredAt    string `json:"occurred_at"`
}

// HandleWebhook authenticates a Swiftship tracking callback with
// HMAC-SHA256 over the raw body and normalizes it.
func (a *Adapter) HandleWebhook(ctx context.Context, payload []byte, signature string) (*providers.WebhookEvent, error) {
	if !a.validSignature(payload, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeVerificationFailed, "swiftship webhook signature mismatch")
	}
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode swiftship webhook")
	}
	if body.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "swiftship event id missing")
	}
	if body.ConsignmentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "swiftship consignment id missing")
	}
	occurredAt := time.Now().UTC()
	if body.OccurredAt != "" {
		if parsed, err := time.Parse(time.RFC3339, body.OccurredAt); err == nil {
			occurredAt = parsed
		}
	}
	return &providers.WebhookEvent{
		EventID:       body.EventID,
		ConsignmentID: body.ConsignmentID,
		Status:        mapStatus(body.Status),
		Description:   body.Description,
		Location:      body.Location,
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
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode swiftship request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build swiftship request")
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build swiftship request")
	}
	return a.do(req, out)
}

func (a *Adapter) do(req *http.Request, out any) error {
	req.Header.Set("X-Api-Key", a.apiKey)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "swiftship request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "read swiftship response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeProvider,
			fmt.Sprintf("swiftship returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"body": string(raw)})
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode swiftship response")
	}
	return nil
}

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

func mapStatus(raw string) enums.ShipmentStatus {
	switch strings.ToLower(raw) {
	case "picked_up", "collected":
		return enums.ShipmentStatusPickedUp
	case "in_transit", "at_hub":
		return enums.ShipmentStatusInTransit
	case "out_for_delivery":
		return enums.ShipmentStatusOutForDelivery
	case "delivered":
		return enums.ShipmentStatusDelivered
	case "returned", "rto":
		return enums.ShipmentStatusReturned
	case "cancelled", "voided":
		return enums.ShipmentStatusCancelled
	default:
		return enums.ShipmentStatusPending
	}
}
