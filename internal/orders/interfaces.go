package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository defines persistence operations for the order tables. Status
// updates are compare-and-set: they report false when the row was no longer
// in the expected status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateVendorOrder(ctx context.Context, order *models.VendorOrder) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	AppendHistory(ctx context.Context, entries ...models.OrderStatusEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filters ListFilters, limit int, cursor *pagination.Cursor) ([]models.Order, *pagination.Cursor, error)
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEntry, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	CancelVendorOrders(ctx context.Context, orderID uuid.UUID, at time.Time) error
	CancelLineItems(ctx context.Context, orderID uuid.UUID) error
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	UpdateVendorOrderStatus(ctx context.Context, id uuid.UUID, from, to enums.VendorOrderStatus, updates map[string]any) (bool, error)
}
