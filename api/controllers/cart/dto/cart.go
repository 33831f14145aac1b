package cartdto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Cart is the cart snapshot returned by every cart endpoint.
type Cart struct {
	ID         uuid.UUID            `json:"id"`
	CustomerID uuid.UUID            `json:"customer_id"`
	Status     enums.CartStatus     `json:"status"`
	Items      []CartItem           `json:"items"`
	Coupons    types.AppliedCoupons `json:"coupons"`
	Summary    Summary              `json:"summary"`
	ExpiresAt  time.Time            `json:"expires_at"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

type CartItem struct {
	ID               uuid.UUID              `json:"id"`
	ProductID        uuid.UUID              `json:"product_id"`
	VendorID         *uuid.UUID             `json:"vendor_id,omitempty"`
	ProductName      string                 `json:"product_name"`
	SKU              string                 `json:"sku"`
	ImageURL         *string                `json:"image_url,omitempty"`
	Brand            *string                `json:"brand,omitempty"`
	Category         *string                `json:"category,omitempty"`
	Quantity         int                    `json:"quantity"`
	UnitPriceCents   int                    `json:"unit_price_cents"`
	SelectedVariants types.SelectedVariants `json:"selected_variants,omitempty"`
	StockStatus      enums.StockStatus      `json:"stock_status"`
	TotalPriceCents  int                    `json:"total_price_cents"`
}

type Summary struct {
	SubtotalCents int `json:"subtotal_cents"`
	TaxCents      int `json:"tax_cents"`
	ShippingCents int `json:"shipping_cents"`
	DiscountCents int `json:"discount_cents"`
	TotalCents    int `json:"total_cents"`
	ItemCount     int `json:"item_count"`
}

// AddItemRequest is the POST /cart/items body.
type AddItemRequest struct {
	ProductID uuid.UUID        `json:"product_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"required,min=1,max=100"`
	Variants  []VariantRequest `json:"variants" validate:"omitempty,max=10,dive"`
}

type VariantRequest struct {
	Name  string `json:"name" validate:"required,max=50"`
	Value string `json:"value" validate:"required,max=50"`
}

// UpdateQuantityRequest is the PATCH /cart/items/{itemId} body.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=100"`
}

// ApplyCouponRequest is the POST /cart/coupons body.
type ApplyCouponRequest struct {
	Code string `json:"code" validate:"required,max=50"`
}
