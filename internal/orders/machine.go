package orders

import (
	"github.com/wovera/storefront-backend/pkg/enums"
)

// transitions is the full order lifecycle graph. Anything not listed is
// rejected, including any move out of a terminal status.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusReadyForPickup,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusReadyForPickup: {
		enums.OrderStatusShipped,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusRefunded,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// releasesStockOnCancel reports whether reserved stock is still held at
// the given status. Cancellation is only reachable from these three.
func releasesStockOnCancel(from enums.OrderStatus) bool {
	switch from {
	case enums.OrderStatusPending, enums.OrderStatusConfirmed,
		enums.OrderStatusProcessing:
		return true
	default:
		return false
	}
}
