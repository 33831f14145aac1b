package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

var ErrNotFound = errors.New("order not found")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateVendorOrder(ctx context.Context, order *models.VendorOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) AppendHistory(ctx context.Context, entries ...models.OrderStatusEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("VendorOrders", byPosition).
		Preload("VendorOrders.Items", byPosition).
		Preload("History", byCreation).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// LockByID takes a row lock on the order header for the rest of the
// transaction.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) error {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// List returns one page ordered newest first. The returned cursor points at
// the last row of the page and is nil when no further rows exist.
func (r *repository) List(ctx context.Context, filters ListFilters, limit int, cursor *pagination.Cursor) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.CustomerID != nil {
		query = query.Where("customer_id = ?", *filters.CustomerID)
	}
	if filters.VendorID != nil {
		query = query.Where("id IN (?)", r.db.Model(&models.VendorOrder{}).Select("order_id").Where("vendor_id = ?", *filters.VendorID))
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var orders []models.Order
	err := query.
		Preload("VendorOrders", byPosition).
		Preload("VendorOrders.Items", byPosition).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&orders).Error
	if err != nil {
		return nil, nil, err
	}

	page, next := pagination.Page(orders, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, next, nil
}

func (r *repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusEntry, error) {
	var entries []models.OrderStatusEntry
	err := byCreation(r.db.WithContext(ctx).Where("order_id = ?", orderID)).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Cancel moves a pending or confirmed order to cancelled.
func (r *repository) Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusConfirmed}).
		Updates(map[string]any{
			"status":        enums.OrderStatusCancelled,
			"cancel_reason": reason,
			"cancelled_at":  at,
			"updated_at":    at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelVendorOrders cancels every vendor order that is not already final.
func (r *repository) CancelVendorOrders(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("order_id = ? AND status NOT IN ?", orderID, []enums.VendorOrderStatus{enums.VendorOrderStatusCancelled, enums.VendorOrderStatusRefunded}).
		Updates(map[string]any{
			"status":       enums.VendorOrderStatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		}).Error
}

func (r *repository) CancelLineItems(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("order_id = ? AND status = ?", orderID, enums.LineItemStatusPending).
		Update("status", enums.LineItemStatusCancelled).Error
}

func (r *repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := withStatus(updates, to)
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateVendorOrderStatus(ctx context.Context, id uuid.UUID, from, to enums.VendorOrderStatus, updates map[string]any) (bool, error) {
	values := withStatus(updates, to)
	res := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func withStatus[S ~string](updates map[string]any, status S) map[string]any {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = status
	if _, ok := values["updated_at"]; !ok {
		values["updated_at"] = time.Now().UTC()
	}
	return values
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("created_at ASC")
}

func byCreation(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}
