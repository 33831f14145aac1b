package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Product is the catalog listing owned by a vendor. Stock is mutated only
// through the conditional updates in internal/products.
type Product struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	VendorID          *uuid.UUID            `gorm:"column:vendor_id;type:uuid"`
	SKU               string                `gorm:"column:sku;not null"`
	Name              string                `gorm:"column:name;not null"`
	Description       *string               `gorm:"column:description"`
	ImageURL          *string               `gorm:"column:image_url"`
	Brand             *string               `gorm:"column:brand"`
	Category          *string               `gorm:"column:category"`
	PriceCents        int                   `gorm:"column:price_cents;not null"`
	Variants          types.ProductVariants `gorm:"column:variants;type:jsonb;serializer:json"`
	Status            enums.ProductStatus   `gorm:"column:status;type:text;not null;default:'active'"`
	TrackQuantity     bool                  `gorm:"column:track_quantity;not null"`
	AllowBackorder    bool                  `gorm:"column:allow_backorder;not null;default:false"`
	Stock             int                   `gorm:"column:stock;not null;default:0"`
	LowStockThreshold int                   `gorm:"column:low_stock_threshold;not null"`
	PurchaseCount     int                   `gorm:"column:purchase_count;not null;default:0"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// EnforcesStock reports whether requested quantities must fit in Stock.
func (p *Product) EnforcesStock() bool {
	return p != nil && p.TrackQuantity && !p.AllowBackorder
}

// StockStatus derives the display indicator for cart snapshots.
func (p *Product) StockStatus() enums.StockStatus {
	switch {
	case p == nil:
		return enums.StockStatusOutOfStock
	case !p.TrackQuantity:
		return enums.StockStatusInStock
	case p.Stock <= 0 && p.AllowBackorder:
		return enums.StockStatusBackorder
	case p.Stock <= 0:
		return enums.StockStatusOutOfStock
	case p.Stock <= p.LowStockThreshold:
		return enums.StockStatusLowStock
	default:
		return enums.StockStatusInStock
	}
}
