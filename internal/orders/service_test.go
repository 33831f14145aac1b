package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/customers"
	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notifications.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type countingMetrics struct {
	cancellations int
	transitions   []string
}

func (c *countingMetrics) IncCancellation()            { c.cancellations++ }
func (c *countingMetrics) IncTransition(status string) { c.transitions = append(c.transitions, status) }

type fixture struct {
	db       *gorm.DB
	svc      Service
	notifier *recordingNotifier
	metrics  *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{db: conn, notifier: &recordingNotifier{}, metrics: &countingMetrics{}}
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        db.NewFromConn(conn),
		Products:  product.NewRepository(conn),
		Customers: customers.NewRepository(conn),
		Notifier:  f.notifier,
		Metrics:   f.metrics,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

type seeded struct {
	order    *models.Order
	customer uuid.UUID
	vendors  []uuid.UUID
	products []*models.Product
}

// seedOrder stores a pending order with one tracked line of quantity 2 per
// vendor, mirroring what checkout leaves behind.
func (f *fixture) seedOrder(t *testing.T, vendorCount int) *seeded {
	t.Helper()
	s := &seeded{customer: uuid.New()}
	order := &models.Order{
		OrderNumber:   "ORD-2610-" + uuid.NewString()[:9],
		CustomerID:    s.customer,
		CartID:        uuid.New(),
		Status:        enums.OrderStatusPending,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentStatus: enums.PaymentStatusPending,
	}
	require.NoError(t, f.db.Omit("VendorOrders", "History").Create(order).Error)

	for i := 0; i < vendorCount; i++ {
		vendor := uuid.New()
		p := &models.Product{
			VendorID:      &vendor,
			SKU:           "SKU-" + uuid.NewString()[:8],
			Name:          "Product",
			PriceCents:    1000,
			Status:        enums.ProductStatusOutOfStock,
			TrackQuantity: true,
			Stock:         0,
			PurchaseCount: 2,
		}
		require.NoError(t, f.db.Create(p).Error)

		vo := &models.VendorOrder{
			OrderID:           order.ID,
			VendorOrderNumber: order.OrderNumber + "-" + string(rune('A'+i)),
			VendorID:          vendor,
			Position:          i,
			Status:            enums.VendorOrderStatusPending,
			SubtotalCents:     2000,
			TaxCents:          360,
			ShippingCents:     1000,
			TotalCents:        3360,
		}
		require.NoError(t, f.db.Omit("Items").Create(vo).Error)
		require.NoError(t, f.db.Create(&models.OrderLineItem{
			OrderID:         order.ID,
			VendorOrderID:   vo.ID,
			ProductID:       p.ID,
			ProductName:     p.Name,
			SKU:             p.SKU,
			Quantity:        2,
			UnitPriceCents:  1000,
			TotalPriceCents: 2000,
			StockTracked:    true,
			Status:          enums.LineItemStatusPending,
		}).Error)

		order.SubtotalCents += vo.SubtotalCents
		order.TaxCents += vo.TaxCents
		order.ShippingCents += vo.ShippingCents
		order.TotalCents += vo.TotalCents
		s.vendors = append(s.vendors, vendor)
		s.products = append(s.products, p)
	}
	require.NoError(t, f.db.Model(order).Updates(map[string]any{
		"subtotal_cents": order.SubtotalCents,
		"tax_cents":      order.TaxCents,
		"shipping_cents": order.ShippingCents,
		"total_cents":    order.TotalCents,
	}).Error)
	require.NoError(t, customers.NewRepository(f.db).RecordOrder(context.Background(), s.customer, order.TotalCents))
	s.order = order
	return s
}

func (s *seeded) customerActor() Actor {
	return Actor{ID: s.customer, Role: enums.ActorRoleCustomer}
}

func (s *seeded) vendorActor(i int) Actor {
	vendor := s.vendors[i]
	return Actor{ID: uuid.New(), Role: enums.ActorRoleVendor, VendorID: &vendor}
}

func adminActor() Actor {
	return Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.Is(err, code), "expected %s, got %v", code, err)
}

func TestGetAuthorizesOwnerVendorAndAdmin(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 2)
	ctx := context.Background()

	detail, err := f.svc.Get(ctx, s.customerActor(), s.order.ID)
	require.NoError(t, err)
	assert.Len(t, detail.VendorOrders, 2)

	detail, err = f.svc.Get(ctx, s.vendorActor(1), s.order.ID)
	require.NoError(t, err)
	require.Len(t, detail.VendorOrders, 1)
	assert.Equal(t, s.vendors[1], detail.VendorOrders[0].VendorID)

	_, err = f.svc.Get(ctx, adminActor(), s.order.ID)
	require.NoError(t, err)

	stranger := Actor{ID: uuid.New(), Role: enums.ActorRoleCustomer}
	_, err = f.svc.Get(ctx, stranger, s.order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	otherVendor := uuid.New()
	_, err = f.svc.Get(ctx, Actor{ID: uuid.New(), Role: enums.ActorRoleVendor, VendorID: &otherVendor}, s.order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Get(ctx, adminActor(), uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestCancelRestoresStockAndAggregates(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 2)
	ctx := context.Background()

	detail, err := f.svc.Cancel(ctx, s.customerActor(), s.order.ID, "  found a better price  ")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, detail.Status)
	require.NotNil(t, detail.CancelReason)
	assert.Equal(t, "found a better price", *detail.CancelReason)
	for _, vo := range detail.VendorOrders {
		assert.Equal(t, enums.VendorOrderStatusCancelled, vo.Status)
		assert.NotNil(t, vo.CancelledAt)
		assert.Equal(t, enums.LineItemStatusCancelled, vo.Items[0].Status)
	}
	require.Len(t, detail.History, 3)
	var orderEntries int
	vendorEntries := map[uuid.UUID]bool{}
	for _, h := range detail.History {
		assert.Equal(t, "cancelled", h.Status)
		assert.Equal(t, enums.ActorRoleCustomer, h.ActorRole)
		if h.VendorOrderID == nil {
			orderEntries++
			continue
		}
		vendorEntries[*h.VendorOrderID] = true
	}
	assert.Equal(t, 1, orderEntries)
	for _, vo := range detail.VendorOrders {
		assert.True(t, vendorEntries[vo.ID], "missing history for vendor order %s", vo.VendorOrderNumber)
	}

	for _, p := range s.products {
		var stored models.Product
		require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
		assert.Equal(t, 2, stored.Stock)
		assert.Equal(t, 0, stored.PurchaseCount)
		assert.Equal(t, enums.ProductStatusActive, stored.Status)
	}

	var agg models.Customer
	require.NoError(t, f.db.First(&agg, "id = ?", s.customer).Error)
	assert.Equal(t, 0, agg.OrderCount)
	assert.Equal(t, 0, agg.LifetimeSpendCents)

	assert.Equal(t, 1, f.metrics.cancellations)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notifications.EventStatusChanged, f.notifier.events[0].Type)
	assert.Equal(t, "pending", f.notifier.events[0].Order.PreviousStatus)
}

func TestCancelTwiceIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 1)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, adminActor(), s.order.ID, "customer called support")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, s.customerActor(), s.order.ID, "customer called support")
	requireCode(t, err, pkgerrors.CodeNotCancellable)

	var stored models.Product
	require.NoError(t, f.db.First(&stored, "id = ?", s.products[0].ID).Error)
	assert.Equal(t, 2, stored.Stock)

	history, err := f.svc.History(ctx, adminActor(), s.order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "one order entry and one vendor order entry")
	assert.Equal(t, 1, f.metrics.cancellations)
}

func TestCancelValidatesReasonAndActor(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 1)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, s.customerActor(), s.order.ID, "too short")
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Cancel(ctx, s.vendorActor(0), s.order.ID, "vendor wants to cancel")
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Cancel(ctx, Actor{ID: uuid.New(), Role: enums.ActorRoleCustomer}, s.order.ID, "not my order at all")
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestCancelRejectedOnceInFulfillment(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 1)
	ctx := context.Background()

	_, err := f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusProcessing})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, s.customerActor(), s.order.ID, "changed my mind today")
	requireCode(t, err, pkgerrors.CodeNotCancellable)
}

func TestUpdateVendorStatusDerivesOrderStatus(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 2)
	ctx := context.Background()

	detail, err := f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, detail.Status)

	detail, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(1), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, detail.Status)

	tracking, carrier := " 1Z999 ", "UPS"
	detail, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{
		Status:         enums.VendorOrderStatusShipped,
		TrackingNumber: &tracking,
		Carrier:        &carrier,
		Note:           "left the warehouse",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, detail.Status)
	require.Len(t, detail.VendorOrders, 1)
	require.NotNil(t, detail.VendorOrders[0].TrackingNumber)
	assert.Equal(t, "1Z999", *detail.VendorOrders[0].TrackingNumber)
	assert.NotNil(t, detail.VendorOrders[0].ShippedAt)

	_, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusDelivered})
	require.NoError(t, err)
	detail, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(1), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, detail.Status)
	assert.NotNil(t, detail.VendorOrders[0].DeliveredAt)

	history, err := f.svc.History(ctx, adminActor(), s.order.ID)
	require.NoError(t, err)
	statuses := make([]string, 0, len(history))
	for _, h := range history {
		statuses = append(statuses, h.Status)
	}
	assert.ElementsMatch(t, []string{
		"confirmed", "confirmed", "confirmed",
		"shipped", "shipped",
		"delivered", "delivered", "delivered",
	}, statuses)
	assert.Equal(t, []string{"confirmed", "confirmed", "shipped", "delivered", "delivered"}, f.metrics.transitions)
	assert.Len(t, f.notifier.events, 5)
}

func TestUpdateVendorStatusRejectsIllegalRequests(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 1)
	ctx := context.Background()

	_, err := f.svc.UpdateVendorStatus(ctx, s.customerActor(), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusConfirmed})
	requireCode(t, err, pkgerrors.CodeForbidden)

	other := uuid.New()
	_, err = f.svc.UpdateVendorStatus(ctx, Actor{ID: uuid.New(), Role: enums.ActorRoleVendor, VendorID: &other}, s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusConfirmed})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusCancelled})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusShipped})
	require.NoError(t, err)
	_, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusConfirmed})
	requireCode(t, err, pkgerrors.CodeInvalidTransition)

	_, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), uuid.New(), VendorStatusInput{Status: enums.VendorOrderStatusDelivered})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestCompleteRequiresAdminAndDelivered(t *testing.T) {
	f := newFixture(t)
	s := f.seedOrder(t, 1)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, adminActor(), s.order.ID)
	requireCode(t, err, pkgerrors.CodeInvalidTransition)

	_, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusDelivered})
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, s.customerActor(), s.order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	detail, err := f.svc.Complete(ctx, adminActor(), s.order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, detail.Status)
	assert.NotNil(t, detail.CompletedAt)

	_, err = f.svc.UpdateVendorStatus(ctx, s.vendorActor(0), s.order.ID, VendorStatusInput{Status: enums.VendorOrderStatusDelivered})
	requireCode(t, err, pkgerrors.CodeInvalidTransition)
}

func TestListScopesByActorAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.seedOrder(t, 1)

	customerID := uuid.New()
	for i := 0; i < 3; i++ {
		s := f.seedOrder(t, 1)
		created := time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", s.order.ID).Updates(map[string]any{
			"customer_id": customerID,
			"created_at":  created,
		}).Error)
	}
	actor := Actor{ID: customerID, Role: enums.ActorRoleCustomer}

	page, err := f.svc.List(ctx, actor, pagination.Params{Limit: 2}, nil)
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Orders[0].CreatedAt.After(page.Orders[1].CreatedAt))
	assert.Equal(t, 2, page.Orders[0].TotalItems)

	next, err := f.svc.List(ctx, actor, pagination.Params{Limit: 2, Cursor: page.NextCursor}, nil)
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	assert.Empty(t, next.NextCursor)
	assert.True(t, next.Orders[0].CreatedAt.Before(page.Orders[1].CreatedAt))

	vendorPage, err := f.svc.List(ctx, first.vendorActor(0), pagination.Params{}, nil)
	require.NoError(t, err)
	require.Len(t, vendorPage.Orders, 1)
	assert.Equal(t, first.order.ID, vendorPage.Orders[0].ID)

	all, err := f.svc.List(ctx, adminActor(), pagination.Params{}, nil)
	require.NoError(t, err)
	assert.Len(t, all.Orders, 4)

	_, err = f.svc.List(ctx, actor, pagination.Params{Cursor: "%%%"}, nil)
	requireCode(t, err, pkgerrors.CodeValidation)
}
