package enums

import "fmt"

// CouponType selects how a coupon discount is computed.
type CouponType string

const (
	CouponTypeFixed      CouponType = "fixed"
	CouponTypePercentage CouponType = "percentage"
)

var validCouponTypes = []CouponType{
	CouponTypeFixed,
	CouponTypePercentage,
}

// String implements fmt.Stringer.
func (s CouponType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CouponType.
func (s CouponType) IsValid() bool {
	for _, candidate := range validCouponTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCouponType converts raw input into a CouponType.
func ParseCouponType(value string) (CouponType, error) {
	for _, candidate := range validCouponTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon type %q", value)
}
