package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// ErrNotFound is returned for unknown coupon codes.
var ErrNotFound = errors.New("coupon not found")

// Catalog resolves coupon codes to their discount rules.
type Catalog interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode looks the code up case-insensitively; codes are stored upper-case.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("code = ?", NormalizeCode(code)).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	return &coupon, nil
}

// NormalizeCode canonicalizes user input before lookup or comparison.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
