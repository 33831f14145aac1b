package enums

import "fmt"

// LineItemStatus captures the per-item state of an order line.
type LineItemStatus string

const (
	LineItemStatusPending   LineItemStatus = "pending"
	LineItemStatusFulfilled LineItemStatus = "fulfilled"
	LineItemStatusCancelled LineItemStatus = "cancelled"
	LineItemStatusRefunded  LineItemStatus = "refunded"
)

var validLineItemStatuses = []LineItemStatus{
	LineItemStatusPending,
	LineItemStatusFulfilled,
	LineItemStatusCancelled,
	LineItemStatusRefunded,
}

// String implements fmt.Stringer.
func (s LineItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LineItemStatus.
func (s LineItemStatus) IsValid() bool {
	for _, candidate := range validLineItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLineItemStatus converts raw input into a LineItemStatus.
func ParseLineItemStatus(value string) (LineItemStatus, error) {
	for _, candidate := range validLineItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid line item status %q", value)
}
