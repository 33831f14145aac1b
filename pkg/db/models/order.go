package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Order is the immutable result of a checkout. Its pricing columns are the
// sums of its vendor orders.
type Order struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string               `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	CustomerID      uuid.UUID            `gorm:"column:customer_id;type:uuid;not null;index"`
	CartID          uuid.UUID            `gorm:"column:cart_id;type:uuid;not null"`
	Status          enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	SubtotalCents   int                  `gorm:"column:subtotal_cents;not null"`
	TaxCents        int                  `gorm:"column:tax_cents;not null"`
	ShippingCents   int                  `gorm:"column:shipping_cents;not null"`
	DiscountCents   int                  `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int                  `gorm:"column:total_cents;not null"`
	ShippingAddress types.Address        `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress  types.Address        `gorm:"column:billing_address;type:jsonb;serializer:json"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus   enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	Coupons         types.AppliedCoupons `gorm:"column:coupons;type:jsonb;serializer:json"`
	Notes           *string              `gorm:"column:notes"`
	CancelReason    *string              `gorm:"column:cancel_reason"`
	CancelledAt     *time.Time           `gorm:"column:cancelled_at"`
	CompletedAt     *time.Time           `gorm:"column:completed_at"`
	VendorOrders    []VendorOrder        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History         []OrderStatusEntry   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// HasVendor reports whether vendorID sells at least one vendor order here.
func (o *Order) HasVendor(vendorID uuid.UUID) bool {
	if o == nil {
		return false
	}
	for _, vo := range o.VendorOrders {
		if vo.VendorID == vendorID {
			return true
		}
	}
	return false
}

// VendorOrder groups the lines of one vendor inside an order.
type VendorOrder struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	VendorOrderNumber string                  `gorm:"column:vendor_order_number;not null"`
	VendorID          uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null;index"`
	Position          int                     `gorm:"column:position;not null;default:0"`
	Status            enums.VendorOrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	SubtotalCents     int                     `gorm:"column:subtotal_cents;not null"`
	TaxCents          int                     `gorm:"column:tax_cents;not null"`
	ShippingCents     int                     `gorm:"column:shipping_cents;not null"`
	DiscountCents     int                     `gorm:"column:discount_cents;not null;default:0"`
	TotalCents        int                     `gorm:"column:total_cents;not null"`
	TrackingNumber    *string                 `gorm:"column:tracking_number"`
	Carrier           *string                 `gorm:"column:carrier"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CancelledAt       *time.Time              `gorm:"column:cancelled_at"`
	Items             []OrderLineItem         `gorm:"foreignKey:VendorOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLineItem copies everything needed to render the line later; product
// edits after checkout never reach it.
type OrderLineItem struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	VendorOrderID    uuid.UUID              `gorm:"column:vendor_order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID              `gorm:"column:product_id;type:uuid;not null"`
	Position         int                    `gorm:"column:position;not null;default:0"`
	ProductName      string                 `gorm:"column:product_name;not null"`
	SKU              string                 `gorm:"column:sku;not null"`
	ImageURL         *string                `gorm:"column:image_url"`
	Brand            *string                `gorm:"column:brand"`
	Category         *string                `gorm:"column:category"`
	Description      *string                `gorm:"column:description"`
	Quantity         int                    `gorm:"column:quantity;not null"`
	UnitPriceCents   int                    `gorm:"column:unit_price_cents;not null"`
	TotalPriceCents  int                    `gorm:"column:total_price_cents;not null"`
	SelectedVariants types.SelectedVariants `gorm:"column:selected_variants;type:jsonb;serializer:json"`
	StockTracked     bool                   `gorm:"column:stock_tracked;not null;default:false"`
	Status           enums.LineItemStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
}

// OrderStatusEntry is one row of the append-only status history.
type OrderStatusEntry struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	VendorOrderID *uuid.UUID      `gorm:"column:vendor_order_id;type:uuid"`
	Status        string          `gorm:"column:status;not null"`
	ActorID       string          `gorm:"column:actor_id;not null"`
	ActorRole     enums.ActorRole `gorm:"column:actor_role;type:text;not null"`
	Note          *string         `gorm:"column:note"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusEntry) TableName() string {
	return "order_status_history"
}
