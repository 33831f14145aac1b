package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer holds the purchase aggregates maintained by checkout and
// cancellation.
type Customer struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderCount         int       `gorm:"column:order_count;not null;default:0"`
	LifetimeSpendCents int       `gorm:"column:lifetime_spend_cents;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
