package types

import (
	"sort"
	"strings"
)

// ProductVariant is one purchasable option a product offers, e.g. size=XL.
type ProductVariant struct {
	Name                 string `json:"name"`
	Value                string `json:"value"`
	PriceAdjustmentCents int    `json:"price_adjustment_cents"`
}

// ProductVariants is the variant table persisted on a product.
type ProductVariants []ProductVariant

// Find returns the variant matching name and value, compared case-insensitively.
func (v ProductVariants) Find(name, value string) (ProductVariant, bool) {
	for _, candidate := range v {
		if strings.EqualFold(candidate.Name, name) && strings.EqualFold(candidate.Value, value) {
			return candidate, true
		}
	}
	return ProductVariant{}, false
}

// SelectedVariant is a variant chosen on a cart or order line, with the
// price adjustment captured when it was chosen.
type SelectedVariant struct {
	Name                 string `json:"name"`
	Value                string `json:"value"`
	PriceAdjustmentCents int    `json:"price_adjustment_cents"`
}

type SelectedVariants []SelectedVariant

// Adjustments lists the per-unit price adjustments in cents.
func (v SelectedVariants) Adjustments() []int {
	out := make([]int, 0, len(v))
	for _, variant := range v {
		out = append(out, variant.PriceAdjustmentCents)
	}
	return out
}

// Key is an order-independent identity used to merge identical selections.
func (v SelectedVariants) Key() string {
	parts := make([]string, 0, len(v))
	for _, variant := range v {
		parts = append(parts, strings.ToLower(variant.Name)+"="+strings.ToLower(variant.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}
