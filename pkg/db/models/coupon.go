package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Coupon is a catalog discount rule. Value is cents for fixed coupons and a
// whole percentage for percentage coupons.
type Coupon struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Code             string           `gorm:"column:code;not null;uniqueIndex:ux_coupons_code"`
	Type             enums.CouponType `gorm:"column:type;type:text;not null"`
	Value            int              `gorm:"column:value;not null"`
	MinSubtotalCents int              `gorm:"column:min_subtotal_cents;not null;default:0"`
	Active           bool             `gorm:"column:active;not null"`
	ExpiresAt        *time.Time       `gorm:"column:expires_at"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// UsableAt reports whether the coupon is active and unexpired at now.
func (c *Coupon) UsableAt(now time.Time) bool {
	if c == nil || !c.Active {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}
