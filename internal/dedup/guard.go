package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// DefaultWindow is how long an add-to-cart claim blocks an identical request.
const DefaultWindow = 2 * time.Second

type rejectionRecorder interface {
	IncDedupRejected()
}

// Guard rejects repeated add-to-cart submissions for the same customer and
// product inside the window.
type Guard struct {
	store   Store
	window  time.Duration
	metrics rejectionRecorder
}

func NewGuard(store Store, window time.Duration, metrics rejectionRecorder) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{store: store, window: window, metrics: metrics}
}

// NewGuardFromConfig picks the backend named by cfg. The redis client is only
// required for the redis backend.
func NewGuardFromConfig(cfg config.DedupConfig, client redis.ClaimStore, metrics rejectionRecorder) (*Guard, error) {
	var store Store
	if cfg.UsesRedis() {
		if client == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "redis dedup backend requires a redis client")
		}
		store = NewRedisStore(client)
	} else {
		store = NewMemoryStore(cfg.Horizon, cfg.MaxEntries)
	}
	return NewGuard(store, cfg.Window, metrics), nil
}

// Key identifies one customer/product pair.
func Key(customerID, productID uuid.UUID) string {
	return customerID.String() + ":" + productID.String()
}

// Check claims the pair or fails with RATE_LIMIT_EXCEEDED.
func (g *Guard) Check(ctx context.Context, customerID, productID uuid.UUID) error {
	ok, err := g.store.Claim(ctx, Key(customerID, productID), g.window)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "duplicate submission check failed")
	}
	if !ok {
		if g.metrics != nil {
			g.metrics.IncDedupRejected()
		}
		return pkgerrors.New(pkgerrors.CodeRateLimit, "duplicate request, please wait before adding this item again")
	}
	return nil
}

// Release frees the claim so a corrected retry is not blocked.
func (g *Guard) Release(ctx context.Context, customerID, productID uuid.UUID) error {
	return g.store.Release(ctx, Key(customerID, productID))
}
