package helpers

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/internal/pricing"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// VendorGroup is the slice of a cart sold by one vendor, priced on its own.
type VendorGroup struct {
	VendorID      uuid.UUID
	Items         []models.CartItem
	LineTotals    []int
	SubtotalCents int
	TaxCents      int
	ShippingCents int
	DiscountCents int
	TotalCents    int
}

// PreDiscountTotal is subtotal + tax + shipping.
func (g VendorGroup) PreDiscountTotal() int {
	return g.SubtotalCents + g.TaxCents + g.ShippingCents
}

// SplitByVendor partitions items by the vendor of their resolved product, in
// first-seen vendor order with item order preserved. Any item whose product
// or vendor cannot be resolved aborts the split.
func SplitByVendor(items []models.CartItem, products map[uuid.UUID]*models.Product) ([]VendorGroup, error) {
	groups := make([]VendorGroup, 0)
	index := make(map[uuid.UUID]int)

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || product == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product for cart item not found").
				WithDetails(map[string]any{"item_id": item.ID, "product_id": item.ProductID})
		}
		if product.VendorID == nil || *product.VendorID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product has no vendor").
				WithDetails(map[string]any{"item_id": item.ID, "product_id": item.ProductID})
		}
		vendorID := *product.VendorID

		pos, seen := index[vendorID]
		if !seen {
			pos = len(groups)
			index[vendorID] = pos
			groups = append(groups, VendorGroup{VendorID: vendorID})
		}
		lineTotal := pricing.ItemTotal(pricing.Line{
			UnitPriceCents:  item.UnitPriceCents,
			AdjustmentCents: item.SelectedVariants.Adjustments(),
			Quantity:        item.Quantity,
		})
		groups[pos].Items = append(groups[pos].Items, item)
		groups[pos].LineTotals = append(groups[pos].LineTotals, lineTotal)
		groups[pos].SubtotalCents += lineTotal
	}

	for i := range groups {
		g := &groups[i]
		g.TaxCents = pricing.Tax(g.SubtotalCents)
		g.ShippingCents = pricing.Shipping(g.SubtotalCents)
		g.TotalCents = g.PreDiscountTotal()
	}
	return groups, nil
}

// ApplyDiscount spreads a cart-level discount over the groups in proportion
// to their subtotals. No group total drops below zero.
func ApplyDiscount(groups []VendorGroup, discountCents int) {
	weights := make([]int, len(groups))
	caps := make([]int, len(groups))
	for i, g := range groups {
		weights[i] = g.SubtotalCents
		caps[i] = g.PreDiscountTotal()
	}
	shares := pricing.AllocateDiscount(discountCents, weights, caps)
	for i := range groups {
		groups[i].DiscountCents = shares[i]
		groups[i].TotalCents = groups[i].PreDiscountTotal() - shares[i]
	}
}

// VendorOrderNumber appends the spreadsheet-style suffix for the index-th
// vendor order: A..Z, AA, AB, ...
func VendorOrderNumber(orderNumber string, index int) string {
	return fmt.Sprintf("%s-%s", orderNumber, suffix(index))
}

func suffix(index int) string {
	if index < 0 {
		index = 0
	}
	var b strings.Builder
	letters := []byte{}
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		letters = append(letters, byte('A'+(n-1)%26))
	}
	for i := len(letters) - 1; i >= 0; i-- {
		b.WriteByte(letters[i])
	}
	return b.String()
}
