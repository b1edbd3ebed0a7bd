package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wovera/storefront-backend/pkg/enums"
	"github.com/wovera/storefront-backend/pkg/types"
)

// RateRequest asks a carrier what a consignment would cost.
type RateRequest struct {
	PickupAddress   types.Address
	DeliveryAddress types.Address
	WeightGrams     int
	CODAmountCents  int
}

// RateQuote is a carrier's priced answer to a RateRequest.
type RateQuote struct {
	Carrier      string
	ServiceLevel string
	CostCents    int
	ETADays      int
}

// ShipmentRequest books a consignment with a carrier.
type ShipmentRequest struct {
	Reference       string
	PickupAddress   types.Address
	DeliveryAddress types.Address
	PackageDesc     string
	WeightGrams     int
	CODAmountCents  int
}

// ShipmentResult is the carrier's booking confirmation.
type ShipmentResult struct {
	ConsignmentID  string
	TrackingNumber string
	TrackingURL    string
	CostCents      int
}

// TrackingInfo is the carrier's current view of a consignment.
type TrackingInfo struct {
	ConsignmentID string
	Status        enums.ShipmentStatus
	Checkpoints   []Checkpoint
}

// Checkpoint is one scan event on a carrier timeline.
type Checkpoint struct {
	Status      enums.ShipmentStatus
	Description string
	Location    string
	OccurredAt  time.Time
}

// WebhookEvent is a carrier tracking callback normalized into tracker terms.
type WebhookEvent struct {
	EventID       string
	ConsignmentID string
	Status        enums.ShipmentStatus
	Description   string
	Location      string
	OccurredAt    time.Time
	Raw           json.RawMessage
}

// Adapter is the contract every carrier integration satisfies. Provider
// calls come before any local write: no remote booking, no local row.
type Adapter interface {
	Name() string
	CalculateRate(ctx context.Context, req RateRequest) (*RateQuote, error)
	CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error)
	GetTracking(ctx context.Context, consignmentID string) (*TrackingInfo, error)
	CancelShipment(ctx context.Context, consignmentID string) error
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
