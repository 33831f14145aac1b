package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestRepositoryCompareAndSetStatus(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 1)
	repo := NewRepository(f.db)
	ctx := context.Background()

	ok, err := repo.UpdateOrderStatus(ctx, s.order.ID, enums.OrderStatusConfirmed, enums.OrderStatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, ok, "stale from status must not match")

	ok, err = repo.UpdateOrderStatus(ctx, s.order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindByID(ctx, s.order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
}

func TestRepositoryCancelLeavesFinalVendorOrders(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 2)
	repo := NewRepository(f.db)
	ctx := context.Background()

	order, err := repo.FindByID(ctx, s.order.ID)
	require.NoError(t, err)
	refunded := order.VendorOrders[1]
	require.NoError(t, f.db.Model(&models.VendorOrder{}).Where("id = ?", refunded.ID).
		Update("status", enums.VendorOrderStatusRefunded).Error)

	now := time.Now().UTC()
	ok, err := repo.Cancel(ctx, s.order.ID, "duplicate order placed", now)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.CancelVendorOrders(ctx, s.order.ID, now))
	require.NoError(t, repo.CancelLineItems(ctx, s.order.ID))

	order, err = repo.FindByID(ctx, s.order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	assert.Equal(t, enums.VendorOrderStatusCancelled, order.VendorOrders[0].Status)
	assert.Equal(t, enums.VendorOrderStatusRefunded, order.VendorOrders[1].Status)
	assert.Nil(t, order.VendorOrders[1].CancelledAt)
	for _, vo := range order.VendorOrders {
		assert.Equal(t, enums.LineItemStatusCancelled, vo.Items[0].Status)
	}

	ok, err = repo.Cancel(ctx, s.order.ID, "duplicate order placed", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryFindByIDMissing(t *testing.T) {
	f := newFixture(t)
	_, err := NewRepository(f.db).FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
