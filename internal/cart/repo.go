package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// ErrNotFound is returned when the customer has no active cart.
var ErrNotFound = errors.New("active cart not found")

const defaultExpiryBatch = 500

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindActive loads the customer's active cart with its lines in insertion order.
func (r *Repository) FindActive(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("customer_id = ? AND status = ?", customerID, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active cart: %w", err)
	}
	return &cart, nil
}

// CreateActive inserts cart unless the customer already has an active one,
// in which case it reports false and the caller should re-read.
func (r *Repository) CreateActive(ctx context.Context, cart *models.Cart) (bool, error) {
	if cart.Status == "" {
		cart.Status = enums.CartStatusActive
	}
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(cart)
	if res.Error != nil {
		return false, fmt.Errorf("create cart: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SaveSummary persists the derived summary, coupons and expiry of cart.
func (r *Repository) SaveSummary(ctx context.Context, cart *models.Cart) error {
	err := r.db.WithContext(ctx).
		Model(cart).
		Select("coupons", "subtotal_cents", "tax_cents", "shipping_cents", "discount_cents", "total_cents", "expires_at", "updated_at").
		Updates(cart).Error
	if err != nil {
		return fmt.Errorf("save cart summary: %w", err)
	}
	return nil
}

// ListItems returns the lines of a cart in insertion order.
func (r *Repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var rows []models.CartItem
	if err := orderedItems(r.db.WithContext(ctx)).
		Where("cart_id = ?", cartID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	return rows, nil
}

func (r *Repository) InsertItem(ctx context.Context, item *models.CartItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, item *models.CartItem) error {
	err := r.db.WithContext(ctx).
		Model(item).
		Select("quantity", "total_price_cents", "stock_status", "updated_at").
		Updates(item).Error
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

// DeleteItem removes one line; false means it is not on the cart.
func (r *Repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return false, fmt.Errorf("delete cart item: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return nil
}

// TransitionStatus moves the cart from one status to another only if it is
// still in from.
func (r *Repository) TransitionStatus(ctx context.Context, cartID uuid.UUID, from, to enums.CartStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("update cart status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkConverted closes an active cart against the order created from it.
func (r *Repository) MarkConverted(ctx context.Context, cartID, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusActive).
		Updates(map[string]any{
			"status":             enums.CartStatusConverted,
			"converted_order_id": orderID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("convert cart: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExpireStale marks up to limit active carts past their expiry as expired.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = defaultExpiryBatch
	}
	ids := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Select("id").
		Where("status = ? AND expires_at < ?", enums.CartStatusActive, now).
		Order("expires_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id IN (?) AND status = ?", ids, enums.CartStatusActive).
		Update("status", enums.CartStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire carts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("created_at ASC")
}
