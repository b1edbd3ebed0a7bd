package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/wovera/storefront-backend/pkg/db/models"
	"github.com/wovera/storefront-backend/pkg/enums"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/outbox"
	"github.com/wovera/storefront-backend/pkg/outbox/idempotency"
	"github.com/wovera/storefront-backend/pkg/outbox/payloads"
)

const orderNotificationConsumer = "order-notifications"

// Consumer watches published order events and turns them into dashboard
// notifications through the dispatcher.
type Consumer struct {
	dispatcher   *Dispatcher
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds the order notification consumer.
func NewConsumer(dispatcher *Dispatcher, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("order events subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		dispatcher:   dispatcher,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	builder, handled := notificationBuilders[eventType]
	if !handled {
		c.logg.Info(logCtx, "skipping unhandled event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notification, err := builder(envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, orderNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	// Dropped-on-saturation is acceptable; the event stays acked either way.
	c.dispatcher.Enqueue(logCtx, notification)
	return processResult{ack: true}
}

type notificationBuilder func(data json.RawMessage) (*models.Notification, error)

var notificationBuilders = map[enums.OutboxEventType]notificationBuilder{
	enums.EventOrderCreated:        buildOrderCreated,
	enums.EventOrderStatusChanged:  buildOrderStatusChanged,
	enums.EventOrderPaymentUpdated: buildOrderPaymentUpdated,
}

func buildOrderCreated(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderCreatedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	link := fmt.Sprintf("/orders/%s", payload.OrderID)
	return &models.Notification{
		StoreID: payload.StoreID,
		OrderID: &payload.OrderID,
		Type:    enums.NotificationTypeOrder,
		Title:   "New order",
		Message: fmt.Sprintf("Order %s placed with %d item(s).", payload.OrderNumber, payload.ItemCount),
		Link:    &link,
	}, nil
}

func buildOrderStatusChanged(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderStatusChangedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	link := fmt.Sprintf("/orders/%s", payload.OrderID)
	return &models.Notification{
		StoreID: payload.StoreID,
		OrderID: &payload.OrderID,
		Type:    enums.NotificationTypeOrder,
		Title:   "Order updated",
		Message: fmt.Sprintf("Order moved from %s to %s.", payload.FromStatus, payload.ToStatus),
		Link:    &link,
	}, nil
}

func buildOrderPaymentUpdated(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderPaymentUpdatedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	link := fmt.Sprintf("/orders/%s", payload.OrderID)
	return &models.Notification{
		StoreID: payload.StoreID,
		OrderID: &payload.OrderID,
		Type:    enums.NotificationTypePayment,
		Title:   "Payment update",
		Message: fmt.Sprintf("Payment is now %s via %s.", payload.PaymentStatus, payload.Provider),
		Link:    &link,
	}, nil
}
