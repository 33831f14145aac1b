// Package pricing holds the pure money rules shared by carts and orders.
// Amounts are integer cents; fractional intermediates are rounded half away
// from zero.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

const (
	TaxRatePercent             = 18
	FreeShippingThresholdCents = 10000
	FlatShippingCents          = 1000
)

var (
	hundred = decimal.NewFromInt(100)
	taxRate = decimal.NewFromInt(TaxRatePercent).Div(hundred)
)

// Line is the priced view of one cart or order line.
type Line struct {
	UnitPriceCents  int
	AdjustmentCents []int
	Quantity        int
}

// Coupon is the priced view of an applied coupon.
type Coupon struct {
	Type  enums.CouponType
	Value int
}

// Summary is the derived money breakdown of a set of lines.
type Summary struct {
	LineTotals      []int
	CouponDiscounts []int
	SubtotalCents   int
	TaxCents        int
	ShippingCents   int
	DiscountCents   int
	TotalCents      int
}

// ItemTotal returns (unit price + variant adjustments) x quantity.
func ItemTotal(line Line) int {
	unit := line.UnitPriceCents
	for _, adj := range line.AdjustmentCents {
		unit += adj
	}
	return unit * line.Quantity
}

// Tax applies the flat tax rate to subtotal.
func Tax(subtotalCents int) int {
	return roundCents(decimal.NewFromInt(int64(subtotalCents)).Mul(taxRate))
}

// Shipping is free at or above the threshold and flat below it.
func Shipping(subtotalCents int) int {
	if subtotalCents >= FreeShippingThresholdCents {
		return 0
	}
	return FlatShippingCents
}

// CouponDiscount returns the amount a single coupon takes off subtotal.
func CouponDiscount(c Coupon, subtotalCents int) int {
	if c.Value <= 0 {
		return 0
	}
	switch c.Type {
	case enums.CouponTypePercentage:
		pct := decimal.NewFromInt(int64(c.Value)).Div(hundred)
		return roundCents(decimal.NewFromInt(int64(subtotalCents)).Mul(pct))
	case enums.CouponTypeFixed:
		return c.Value
	default:
		return 0
	}
}

// Total floors subtotal + tax + shipping - discount at zero.
func Total(subtotalCents, taxCents, shippingCents, discountCents int) int {
	total := subtotalCents + taxCents + shippingCents - discountCents
	if total < 0 {
		return 0
	}
	return total
}

// Summarize computes the full breakdown. Coupons stack additively against the
// same subtotal. An empty line set yields an all-zero summary.
func Summarize(lines []Line, coupons []Coupon) Summary {
	if len(lines) == 0 {
		return Summary{}
	}

	out := Summary{
		LineTotals:      make([]int, len(lines)),
		CouponDiscounts: make([]int, len(coupons)),
	}
	for i, line := range lines {
		out.LineTotals[i] = ItemTotal(line)
		out.SubtotalCents += out.LineTotals[i]
	}
	out.TaxCents = Tax(out.SubtotalCents)
	out.ShippingCents = Shipping(out.SubtotalCents)
	for i, c := range coupons {
		out.CouponDiscounts[i] = CouponDiscount(c, out.SubtotalCents)
		out.DiscountCents += out.CouponDiscounts[i]
	}
	out.TotalCents = Total(out.SubtotalCents, out.TaxCents, out.ShippingCents, out.DiscountCents)
	return out
}

// AllocateDiscount spreads discount across buckets proportionally to weights
// using largest-remainder rounding, never giving a bucket more than its cap.
// Whatever cannot fit under the caps is dropped.
func AllocateDiscount(discountCents int, weights, caps []int) []int {
	out := make([]int, len(weights))
	if discountCents <= 0 || len(weights) == 0 || len(caps) != len(weights) {
		return out
	}

	active := make([]int, 0, len(weights))
	for i := range weights {
		if caps[i] > 0 {
			active = append(active, i)
		}
	}

	remaining := discountCents
	for remaining > 0 && len(active) > 0 {
		shares := largestRemainder(remaining, weights, active)
		distributed := 0
		next := active[:0:0]
		for j, idx := range active {
			give := shares[j]
			if room := caps[idx] - out[idx]; give > room {
				give = room
			}
			out[idx] += give
			distributed += give
			if out[idx] < caps[idx] {
				next = append(next, idx)
			}
		}
		if distributed == 0 {
			break
		}
		remaining -= distributed
		active = next
	}
	return out
}

func largestRemainder(amount int, weights []int, active []int) []int {
	total := 0
	for _, idx := range active {
		if weights[idx] > 0 {
			total += weights[idx]
		}
	}

	uniform := total == 0
	if uniform {
		total = len(active)
	}

	shares := make([]int, len(active))
	remainders := make([]int, len(active))
	assigned := 0
	for j, idx := range active {
		w := weights[idx]
		switch {
		case uniform:
			w = 1
		case w < 0:
			w = 0
		}
		shares[j] = amount * w / total
		remainders[j] = amount * w % total
		assigned += shares[j]
	}

	order := make([]int, len(active))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for k := 0; assigned < amount; k++ {
		shares[order[k%len(order)]]++
		assigned++
	}
	return shares
}

func roundCents(d decimal.Decimal) int {
	return int(d.Round(0).IntPart())
}
