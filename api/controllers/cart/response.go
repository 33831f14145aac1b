package cart

import (
	cartdto "github.com/angelmondragon/marketplace-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

func newCartResponse(record *models.Cart) cartdto.Cart {
	items := make([]cartdto.CartItem, 0, len(record.Items))
	count := 0
	for _, item := range record.Items {
		count += item.Quantity
		items = append(items, cartdto.CartItem{
			ID:               item.ID,
			ProductID:        item.ProductID,
			VendorID:         item.VendorID,
			ProductName:      item.ProductName,
			SKU:              item.SKU,
			ImageURL:         item.ImageURL,
			Brand:            item.Brand,
			Category:         item.Category,
			Quantity:         item.Quantity,
			UnitPriceCents:   item.UnitPriceCents,
			SelectedVariants: item.SelectedVariants,
			StockStatus:      item.StockStatus,
			TotalPriceCents:  item.TotalPriceCents,
		})
	}

	coupons := record.Coupons
	if coupons == nil {
		coupons = types.AppliedCoupons{}
	}

	return cartdto.Cart{
		ID:         record.ID,
		CustomerID: record.CustomerID,
		Status:     record.Status,
		Items:      items,
		Coupons:    coupons,
		Summary: cartdto.Summary{
			SubtotalCents: record.SubtotalCents,
			TaxCents:      record.TaxCents,
			ShippingCents: record.ShippingCents,
			DiscountCents: record.DiscountCents,
			TotalCents:    record.TotalCents,
			ItemCount:     count,
		},
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
