package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// ListFilters narrows the order list to what the caller may see. Nil fields
// are not applied.
type ListFilters struct {
	CustomerID *uuid.UUID
	VendorID   *uuid.UUID
	Status     *enums.OrderStatus
}

// LineItemDetail is a frozen order line.
type LineItemDetail struct {
	ID               uuid.UUID              `json:"id"`
	ProductID        uuid.UUID              `json:"product_id"`
	ProductName      string                 `json:"product_name"`
	SKU              string                 `json:"sku"`
	ImageURL         *string                `json:"image_url,omitempty"`
	Brand            *string                `json:"brand,omitempty"`
	Category         *string                `json:"category,omitempty"`
	Quantity         int                    `json:"quantity"`
	UnitPriceCents   int                    `json:"unit_price_cents"`
	TotalPriceCents  int                    `json:"total_price_cents"`
	SelectedVariants types.SelectedVariants `json:"selected_variants,omitempty"`
	Status           enums.LineItemStatus   `json:"status"`
}

// VendorOrderDetail is one vendor's slice of the order.
type VendorOrderDetail struct {
	ID                uuid.UUID               `json:"id"`
	VendorOrderNumber string                  `json:"vendor_order_number"`
	VendorID          uuid.UUID               `json:"vendor_id"`
	Status            enums.VendorOrderStatus `json:"status"`
	SubtotalCents     int                     `json:"subtotal_cents"`
	TaxCents          int                     `json:"tax_cents"`
	ShippingCents     int                     `json:"shipping_cents"`
	DiscountCents     int                     `json:"discount_cents"`
	TotalCents        int                     `json:"total_cents"`
	TrackingNumber    *string                 `json:"tracking_number,omitempty"`
	Carrier           *string                 `json:"carrier,omitempty"`
	ShippedAt         *time.Time              `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time              `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time              `json:"cancelled_at,omitempty"`
	Items             []LineItemDetail        `json:"items"`
}

// StatusEntry is one row of the order history.
type StatusEntry struct {
	Status        string          `json:"status"`
	VendorOrderID *uuid.UUID      `json:"vendor_order_id,omitempty"`
	ActorID       string          `json:"actor_id"`
	ActorRole     enums.ActorRole `json:"actor_role"`
	Note          *string         `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderDetail is the full order returned by checkout and the order endpoints.
type OrderDetail struct {
	ID              uuid.UUID            `json:"id"`
	OrderNumber     string               `json:"order_number"`
	CustomerID      uuid.UUID            `json:"customer_id"`
	Status          enums.OrderStatus    `json:"status"`
	SubtotalCents   int                  `json:"subtotal_cents"`
	TaxCents        int                  `json:"tax_cents"`
	ShippingCents   int                  `json:"shipping_cents"`
	DiscountCents   int                  `json:"discount_cents"`
	TotalCents      int                  `json:"total_cents"`
	ShippingAddress types.Address        `json:"shipping_address"`
	BillingAddress  types.Address        `json:"billing_address"`
	PaymentMethod   enums.PaymentMethod  `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus  `json:"payment_status"`
	Coupons         types.AppliedCoupons `json:"coupons,omitempty"`
	Notes           *string              `json:"notes,omitempty"`
	CancelReason    *string              `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	VendorOrders    []VendorOrderDetail  `json:"vendor_orders"`
	History         []StatusEntry        `json:"history,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// OrderSummary is the list row for an order.
type OrderSummary struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	TotalCents  int               `json:"total_cents"`
	VendorCount int               `json:"vendor_count"`
	TotalItems  int               `json:"total_items"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// OrderList wraps a page of orders plus the cursor for the next page.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ToDetail renders an order graph. When vendorID is set only that vendor's
// slice is included.
func ToDetail(order *models.Order, vendorID *uuid.UUID) OrderDetail {
	detail := OrderDetail{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		Status:          order.Status,
		SubtotalCents:   order.SubtotalCents,
		TaxCents:        order.TaxCents,
		ShippingCents:   order.ShippingCents,
		DiscountCents:   order.DiscountCents,
		TotalCents:      order.TotalCents,
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		Coupons:         order.Coupons,
		Notes:           order.Notes,
		CancelReason:    order.CancelReason,
		CancelledAt:     order.CancelledAt,
		CompletedAt:     order.CompletedAt,
		VendorOrders:    make([]VendorOrderDetail, 0, len(order.VendorOrders)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, vo := range order.VendorOrders {
		if vendorID != nil && vo.VendorID != *vendorID {
			continue
		}
		detail.VendorOrders = append(detail.VendorOrders, toVendorOrderDetail(vo))
	}
	if len(order.History) > 0 {
		detail.History = toStatusEntries(order.History)
	}
	return detail
}

func toStatusEntries(entries []models.OrderStatusEntry) []StatusEntry {
	out := make([]StatusEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, StatusEntry{
			Status:        entry.Status,
			VendorOrderID: entry.VendorOrderID,
			ActorID:       entry.ActorID,
			ActorRole:     entry.ActorRole,
			Note:          entry.Note,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return out
}

func toVendorOrderDetail(vo models.VendorOrder) VendorOrderDetail {
	out := VendorOrderDetail{
		ID:                vo.ID,
		VendorOrderNumber: vo.VendorOrderNumber,
		VendorID:          vo.VendorID,
		Status:            vo.Status,
		SubtotalCents:     vo.SubtotalCents,
		TaxCents:          vo.TaxCents,
		ShippingCents:     vo.ShippingCents,
		DiscountCents:     vo.DiscountCents,
		TotalCents:        vo.TotalCents,
		TrackingNumber:    vo.TrackingNumber,
		Carrier:           vo.Carrier,
		ShippedAt:         vo.ShippedAt,
		DeliveredAt:       vo.DeliveredAt,
		CancelledAt:       vo.CancelledAt,
		Items:             make([]LineItemDetail, 0, len(vo.Items)),
	}
	for _, item := range vo.Items {
		out.Items = append(out.Items, LineItemDetail{
			ID:               item.ID,
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			SKU:              item.SKU,
			ImageURL:         item.ImageURL,
			Brand:            item.Brand,
			Category:         item.Category,
			Quantity:         item.Quantity,
			UnitPriceCents:   item.UnitPriceCents,
			TotalPriceCents:  item.TotalPriceCents,
			SelectedVariants: item.SelectedVariants,
			Status:           item.Status,
		})
	}
	return out
}

func toSummary(order models.Order) OrderSummary {
	items := 0
	for _, vo := range order.VendorOrders {
		for _, item := range vo.Items {
			items += item.Quantity
		}
	}
	return OrderSummary{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalCents:  order.TotalCents,
		VendorCount: len(order.VendorOrders),
		TotalItems:  items,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}
