package enums

// OutboxEventType names a domain event emitted through the outbox.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order.created"
	EventOrderStatusChanged  OutboxEventType = "order.status_changed"
	EventOrderPaymentUpdated OutboxEventType = "order.payment_updated"
	EventShipmentUpdated     OutboxEventType = "shipment.updated"
	EventShipmentCODSettled  OutboxEventType = "shipment.cod_settled"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder              OutboxAggregateType = "order"
	AggregateShipment           OutboxAggregateType = "shipment"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
)

// OutboxDLQErrorReason explains why a publish attempt became terminal.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
