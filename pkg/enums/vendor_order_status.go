package enums

import "fmt"

// VendorOrderStatus tracks the lifecycle of the vendor-scoped part of an order.
type VendorOrderStatus string

const (
	VendorOrderStatusPending    VendorOrderStatus = "pending"
	VendorOrderStatusConfirmed  VendorOrderStatus = "confirmed"
	VendorOrderStatusProcessing VendorOrderStatus = "processing"
	VendorOrderStatusShipped    VendorOrderStatus = "shipped"
	VendorOrderStatusDelivered  VendorOrderStatus = "delivered"
	VendorOrderStatusCancelled  VendorOrderStatus = "cancelled"
	VendorOrderStatusRefunded   VendorOrderStatus = "refunded"
)

var validVendorOrderStatuses = []VendorOrderStatus{
	VendorOrderStatusPending,
	VendorOrderStatusConfirmed,
	VendorOrderStatusProcessing,
	VendorOrderStatusShipped,
	VendorOrderStatusDelivered,
	VendorOrderStatusCancelled,
	VendorOrderStatusRefunded,
}

// String implements fmt.Stringer.
func (s VendorOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known VendorOrderStatus.
func (s VendorOrderStatus) IsValid() bool {
	for _, candidate := range validVendorOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseVendorOrderStatus converts raw input into a VendorOrderStatus.
func ParseVendorOrderStatus(value string) (VendorOrderStatus, error) {
	for _, candidate := range validVendorOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor order status %q", value)
}
