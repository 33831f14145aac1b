package orders

import (
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// vendorLifecycle ranks the forward vendor order statuses. Cancelled is not
// ranked: it is only reachable from the first two stages.
var vendorLifecycle = map[enums.VendorOrderStatus]int{
	enums.VendorOrderStatusPending:    0,
	enums.VendorOrderStatusConfirmed:  1,
	enums.VendorOrderStatusProcessing: 2,
	enums.VendorOrderStatusShipped:    3,
	enums.VendorOrderStatusDelivered:  4,
	enums.VendorOrderStatusRefunded:   5,
}

var orderLifecycle = map[enums.OrderStatus]int{
	enums.OrderStatusPending:    0,
	enums.OrderStatusConfirmed:  1,
	enums.OrderStatusProcessing: 2,
	enums.OrderStatusShipped:    3,
	enums.OrderStatusDelivered:  4,
	enums.OrderStatusCompleted:  5,
	enums.OrderStatusRefunded:   6,
}

// orderStatusForStage maps a vendor lifecycle rank to the order status it
// implies when every live vendor order has reached it.
var orderStatusForStage = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusConfirmed,
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
}

// VendorUpdatableStatuses are the targets a vendor may request directly.
var VendorUpdatableStatuses = []enums.VendorOrderStatus{
	enums.VendorOrderStatusConfirmed,
	enums.VendorOrderStatusProcessing,
	enums.VendorOrderStatusShipped,
	enums.VendorOrderStatusDelivered,
}

func IsTerminalVendorStatus(status enums.VendorOrderStatus) bool {
	return status == enums.VendorOrderStatusCancelled || status == enums.VendorOrderStatusRefunded
}

func IsTerminalOrderStatus(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusCompleted, enums.OrderStatusCancelled, enums.OrderStatusRefunded:
		return true
	}
	return false
}

// CanBeCancelled reports whether an order in status may still be cancelled.
func CanBeCancelled(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPending || status == enums.OrderStatusConfirmed
}

func canVendorOrderBeCancelled(status enums.VendorOrderStatus) bool {
	return status == enums.VendorOrderStatusPending || status == enums.VendorOrderStatusConfirmed
}

// ValidateVendorTransition enforces the monotonic vendor order lifecycle.
func ValidateVendorTransition(current, next enums.VendorOrderStatus) error {
	if !next.IsValid() {
		return invalidTransition(string(current), string(next), "unknown status")
	}
	if IsTerminalVendorStatus(current) {
		return invalidTransition(string(current), string(next), "vendor order is final")
	}
	if next == enums.VendorOrderStatusCancelled {
		if canVendorOrderBeCancelled(current) {
			return nil
		}
		return invalidTransition(string(current), string(next), "vendor order already in fulfillment")
	}
	currentRank, ok := vendorLifecycle[current]
	if !ok {
		return invalidTransition(string(current), string(next), "unknown current status")
	}
	if vendorLifecycle[next] <= currentRank {
		return invalidTransition(string(current), string(next), "status may only move forward")
	}
	return nil
}

// ValidateOrderTransition applies the same rules to the order header.
func ValidateOrderTransition(current, next enums.OrderStatus) error {
	if !next.IsValid() {
		return invalidTransition(string(current), string(next), "unknown status")
	}
	if IsTerminalOrderStatus(current) {
		return invalidTransition(string(current), string(next), "order is final")
	}
	if next == enums.OrderStatusCancelled {
		if CanBeCancelled(current) {
			return nil
		}
		return invalidTransition(string(current), string(next), "order already in fulfillment")
	}
	currentRank, ok := orderLifecycle[current]
	if !ok {
		return invalidTransition(string(current), string(next), "unknown current status")
	}
	if orderLifecycle[next] <= currentRank {
		return invalidTransition(string(current), string(next), "status may only move forward")
	}
	return nil
}

// DeriveOrderStatus computes the order status implied by its vendor orders.
// Cancelled and refunded vendor orders take no part. The result never moves
// the order backwards and never leaves a final status.
func DeriveOrderStatus(current enums.OrderStatus, vendorStatuses []enums.VendorOrderStatus) enums.OrderStatus {
	if IsTerminalOrderStatus(current) {
		return current
	}
	lowest := -1
	anyShipped := false
	for _, status := range vendorStatuses {
		if IsTerminalVendorStatus(status) {
			continue
		}
		rank := vendorLifecycle[status]
		if lowest == -1 || rank < lowest {
			lowest = rank
		}
		if status == enums.VendorOrderStatusShipped || status == enums.VendorOrderStatusDelivered {
			anyShipped = true
		}
	}
	if lowest == -1 {
		return current
	}
	derived := orderStatusForStage[lowest]
	if anyShipped && orderLifecycle[derived] < orderLifecycle[enums.OrderStatusShipped] {
		derived = enums.OrderStatusShipped
	}
	if orderLifecycle[derived] <= orderLifecycle[current] {
		return current
	}
	return derived
}

func invalidTransition(from, to, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move from "+from+" to "+to+": "+reason).
		WithDetails(map[string]any{"from": from, "to": to})
}
