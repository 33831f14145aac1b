package customers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// AggregateRepository maintains per-customer order statistics with atomic
// increments so concurrent checkouts never lose an update.
type AggregateRepository interface {
	WithTx(tx *gorm.DB) AggregateRepository
	RecordOrder(ctx context.Context, customerID uuid.UUID, spendCents int) error
	ReverseOrder(ctx context.Context, customerID uuid.UUID, spendCents int) error
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) AggregateRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// RecordOrder adds one order and spendCents, creating the row on first use.
func (r *Repository) RecordOrder(ctx context.Context, customerID uuid.UUID, spendCents int) error {
	row := models.Customer{ID: customerID, OrderCount: 1, LifetimeSpendCents: spendCents}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"order_count":          gorm.Expr("customers.order_count + ?", 1),
			"lifetime_spend_cents": gorm.Expr("customers.lifetime_spend_cents + ?", spendCents),
			"updated_at":           gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record order for customer %s: %w", customerID, err)
	}
	return nil
}

// ReverseOrder subtracts one order and spendCents.
func (r *Repository) ReverseOrder(ctx context.Context, customerID uuid.UUID, spendCents int) error {
	res := r.db.WithContext(ctx).Exec(`
UPDATE customers
SET order_count = order_count - 1,
    lifetime_spend_cents = lifetime_spend_cents - ?,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND order_count > 0`, spendCents, customerID)
	if res.Error != nil {
		return fmt.Errorf("reverse order for customer %s: %w", customerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reverse order for customer %s: no recorded orders", customerID)
	}
	return nil
}
