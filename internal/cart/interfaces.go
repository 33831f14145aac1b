package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// CartRepository defines the persistence surface required by the cart and
// checkout services.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindActive(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	CreateActive(ctx context.Context, cart *models.Cart) (bool, error)
	SaveSummary(ctx context.Context, cart *models.Cart) error
	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	InsertItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error)
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	TransitionStatus(ctx context.Context, cartID uuid.UUID, from, to enums.CartStatus) (bool, error)
	MarkConverted(ctx context.Context, cartID, orderID uuid.UUID) (bool, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}
