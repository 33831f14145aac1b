package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// ErrNotFound is returned when a product id does not resolve.
var ErrNotFound = errors.New("product not found")

// StockRepository is the catalog contract consumed by cart, checkout and
// cancellation: lookups plus atomic stock adjustment.
type StockRepository interface {
	WithTx(tx *gorm.DB) StockRepository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	RestoreStock(ctx context.Context, id uuid.UUID, qty int) error
}

// Repository implements StockRepository on gorm.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) StockRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads one product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find product %s: %w", id, err)
	}
	return &product, nil
}

// FindByIDs loads the given products under a row lock, keyed by id. Missing
// ids are simply absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// DecrementStock takes qty units in one conditional UPDATE. It returns false
// when the product disallows backorder and holds fewer than qty units, in
// which case nothing changes. Reaching zero flips the product out of stock.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("decrement quantity must be positive")
	}
	res := r.db.WithContext(ctx).Exec(`
UPDATE products
SET stock = stock - ?,
    purchase_count = purchase_count + ?,
    status = CASE WHEN stock - ? <= 0 AND allow_backorder = ? THEN ? ELSE status END,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?
  AND track_quantity = ?
  AND (allow_backorder = ? OR stock >= ?)`,
		qty, qty, qty, false, enums.ProductStatusOutOfStock,
		id, true, true, qty,
	)
	if res.Error != nil {
		return false, fmt.Errorf("decrement stock %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RestoreStock returns qty units to a tracked product and reverses the
// purchase counter, reactivating products that were only out of stock.
func (r *Repository) RestoreStock(ctx context.Context, id uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("restore quantity must be positive")
	}
	res := r.db.WithContext(ctx).Exec(`
UPDATE products
SET stock = stock + ?,
    purchase_count = CASE WHEN purchase_count >= ? THEN purchase_count - ? ELSE 0 END,
    status = CASE WHEN status = ? AND stock + ? > 0 THEN ? ELSE status END,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?`,
		qty, qty, qty,
		enums.ProductStatusOutOfStock, qty, enums.ProductStatusActive,
		id,
	)
	if res.Error != nil {
		return fmt.Errorf("restore stock %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
