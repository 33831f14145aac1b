package types

import (
	"strings"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// AppliedCoupon records a coupon on a cart or order. DiscountCents is
// recomputed from Type and Value whenever the owning summary is.
type AppliedCoupon struct {
	Code          string           `json:"code"`
	Type          enums.CouponType `json:"type"`
	Value         int              `json:"value"`
	DiscountCents int              `json:"discount_cents"`
}

type AppliedCoupons []AppliedCoupon

// Has reports whether code is already applied.
func (c AppliedCoupons) Has(code string) bool {
	return c.index(code) >= 0
}

// Without returns a copy with code removed and whether it was present.
func (c AppliedCoupons) Without(code string) (AppliedCoupons, bool) {
	idx := c.index(code)
	if idx < 0 {
		return c, false
	}
	out := make(AppliedCoupons, 0, len(c)-1)
	out = append(out, c[:idx]...)
	out = append(out, c[idx+1:]...)
	return out, true
}

func (c AppliedCoupons) index(code string) int {
	for i, coupon := range c {
		if strings.EqualFold(coupon.Code, code) {
			return i
		}
	}
	return -1
}
