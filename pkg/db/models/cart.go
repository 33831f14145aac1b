package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Cart is a customer's pre-purchase basket. The summary columns are derived
// from Items and Coupons on every save and are never authoritative.
type Cart struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID       uuid.UUID            `gorm:"column:customer_id;type:uuid;not null;index"`
	Status           enums.CartStatus     `gorm:"column:status;type:text;not null;default:'active'"`
	Coupons          types.AppliedCoupons `gorm:"column:coupons;type:jsonb;serializer:json"`
	SubtotalCents    int                  `gorm:"column:subtotal_cents;not null;default:0"`
	TaxCents         int                  `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents    int                  `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents    int                  `gorm:"column:discount_cents;not null;default:0"`
	TotalCents       int                  `gorm:"column:total_cents;not null;default:0"`
	ExpiresAt        time.Time            `gorm:"column:expires_at;not null"`
	ConvertedOrderID *uuid.UUID           `gorm:"column:converted_order_id;type:uuid"`
	Items            []CartItem           `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem is a cart line. UnitPriceCents and the product fields are
// snapshots taken when the line was added.
type CartItem struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID              `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID        uuid.UUID              `gorm:"column:product_id;type:uuid;not null"`
	VendorID         *uuid.UUID             `gorm:"column:vendor_id;type:uuid"`
	Position         int                    `gorm:"column:position;not null;default:0"`
	Quantity         int                    `gorm:"column:quantity;not null"`
	UnitPriceCents   int                    `gorm:"column:unit_price_cents;not null"`
	SelectedVariants types.SelectedVariants `gorm:"column:selected_variants;type:jsonb;serializer:json"`
	ProductName      string                 `gorm:"column:product_name;not null"`
	SKU              string                 `gorm:"column:sku;not null"`
	ImageURL         *string                `gorm:"column:image_url"`
	Brand            *string                `gorm:"column:brand"`
	Category         *string                `gorm:"column:category"`
	StockStatus      enums.StockStatus      `gorm:"column:stock_status;type:text;not null;default:'in_stock'"`
	TotalPriceCents  int                    `gorm:"column:total_price_cents;not null"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
