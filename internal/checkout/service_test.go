package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/customers"
	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
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

type recordingMetrics struct {
	mu    sync.Mutex
	codes []string
}

func (r *recordingMetrics) ObserveCheckout(code string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

type failingCustomers struct {
	customers.AggregateRepository
}

func (f failingCustomers) WithTx(*gorm.DB) customers.AggregateRepository { return f }

func (failingCustomers) RecordOrder(context.Context, uuid.UUID, int) error {
	return errors.New("aggregate store unavailable")
}

// reloadFailingOrders works inside transactions but fails standalone reads.
type reloadFailingOrders struct {
	orders.Repository
	bound bool
}

func (r reloadFailingOrders) WithTx(tx *gorm.DB) orders.Repository {
	return reloadFailingOrders{Repository: r.Repository.WithTx(tx), bound: true}
}

func (r reloadFailingOrders) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if !r.bound {
		return nil, errors.New("replica unavailable")
	}
	return r.Repository.FindByID(ctx, id)
}

type fixture struct {
	db       *gorm.DB
	client   *db.Client
	notifier *recordingNotifier
	metrics  *recordingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	return &fixture{
		db:       conn,
		client:   db.NewFromConn(conn),
		notifier: &recordingNotifier{},
		metrics:  &recordingMetrics{},
	}
}

func (f *fixture) params() ServiceParams {
	return ServiceParams{
		Tx:        f.client,
		Carts:     cart.NewRepository(f.db),
		Orders:    orders.NewRepository(f.db),
		Products:  product.NewRepository(f.db),
		Customers: customers.NewRepository(f.db),
		Notifier:  f.notifier,
		Metrics:   f.metrics,
	}
}

func (f *fixture) service(t *testing.T, mutate ...func(*ServiceParams)) Service {
	t.Helper()
	params := f.params()
	for _, fn := range mutate {
		fn(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func (f *fixture) product(t *testing.T, vendor uuid.UUID, priceCents, stock int, mutate ...func(*models.Product)) *models.Product {
	t.Helper()
	p := &models.Product{
		VendorID:      &vendor,
		SKU:           "SKU-" + uuid.NewString()[:8],
		Name:          "Product " + uuid.NewString()[:4],
		PriceCents:    priceCents,
		Status:        enums.ProductStatusActive,
		TrackQuantity: true,
		Stock:         stock,
	}
	for _, fn := range mutate {
		fn(p)
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

type line struct {
	product  *models.Product
	quantity int
}

func (f *fixture) cart(t *testing.T, customerID uuid.UUID, coupons types.AppliedCoupons, lines ...line) *models.Cart {
	t.Helper()
	c := &models.Cart{
		CustomerID: customerID,
		Status:     enums.CartStatusActive,
		Coupons:    coupons,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, f.db.Omit("Items").Create(c).Error)
	for i, l := range lines {
		item := &models.CartItem{
			CartID:          c.ID,
			ProductID:       l.product.ID,
			VendorID:        l.product.VendorID,
			Position:        i,
			Quantity:        l.quantity,
			UnitPriceCents:  l.product.PriceCents,
			ProductName:     l.product.Name,
			SKU:             l.product.SKU,
			StockStatus:     enums.StockStatusInStock,
			TotalPriceCents: l.product.PriceCents * l.quantity,
		}
		require.NoError(t, f.db.Create(item).Error)
	}
	return c
}

func (f *fixture) reload(t *testing.T, p *models.Product) *models.Product {
	t.Helper()
	var out models.Product
	require.NoError(t, f.db.First(&out, "id = ?", p.ID).Error)
	return &out
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func validInput() CheckoutInput {
	return CheckoutInput{
		ShippingAddress: types.Address{
			FullName:   "Ada Lovelace",
			Line1:      "12 Analytical Row",
			City:       "London",
			State:      "LDN",
			PostalCode: "N1 7AA",
			Country:    "GB",
		},
		PaymentMethod: enums.PaymentMethodCard,
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), typed.Error())
	return typed
}

func TestExecuteSplitsTwoVendorsWithIndependentPricing(t *testing.T) {
	f := newFixture(t)
	vendorA, vendorB := uuid.New(), uuid.New()
	cheap := f.product(t, vendorA, 8000, 5)
	pricey := f.product(t, vendorB, 15000, 5)
	customerID := uuid.New()
	c := f.cart(t, customerID, nil, line{cheap, 1}, line{pricey, 1})

	order, err := f.service(t).Execute(context.Background(), customerID, validInput())
	require.NoError(t, err)

	require.Len(t, order.VendorOrders, 2)
	a, b := order.VendorOrders[0], order.VendorOrders[1]
	assert.Equal(t, vendorA, a.VendorID)
	assert.Equal(t, order.OrderNumber+"-A", a.VendorOrderNumber)
	assert.Equal(t, []int{8000, 1440, 1000, 10440}, []int{a.SubtotalCents, a.TaxCents, a.ShippingCents, a.TotalCents})
	assert.Equal(t, vendorB, b.VendorID)
	assert.Equal(t, order.OrderNumber+"-B", b.VendorOrderNumber)
	assert.Equal(t, []int{15000, 2700, 0, 17700}, []int{b.SubtotalCents, b.TaxCents, b.ShippingCents, b.TotalCents})

	assert.Equal(t, 28140, order.TotalCents)
	assert.Equal(t, a.TotalCents+b.TotalCents, order.TotalCents)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, order.ShippingAddress, order.BillingAddress)
	assert.Regexp(t, `^ORD-\d{4}-\d{9}$`, order.OrderNumber)
	require.Len(t, a.Items, 1)
	assert.True(t, a.Items[0].StockTracked)
	assert.Equal(t, cheap.Name, a.Items[0].ProductName)
	require.Len(t, order.History, 1)
	assert.Equal(t, "pending", order.History[0].Status)

	assert.Equal(t, 4, f.reload(t, cheap).Stock)
	assert.Equal(t, 1, f.reload(t, pricey).PurchaseCount)

	var stored models.Cart
	require.NoError(t, f.db.First(&stored, "id = ?", c.ID).Error)
	assert.Equal(t, enums.CartStatusConverted, stored.Status)
	require.NotNil(t, stored.ConvertedOrderID)
	assert.Equal(t, order.ID, *stored.ConvertedOrderID)

	var agg models.Customer
	require.NoError(t, f.db.First(&agg, "id = ?", customerID).Error)
	assert.Equal(t, 1, agg.OrderCount)
	assert.Equal(t, 28140, agg.LifetimeSpendCents)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notifications.EventOrderCreated, f.notifier.events[0].Type)
	assert.Equal(t, order.ID, f.notifier.events[0].Order.OrderID)
	assert.Equal(t, []string{""}, f.metrics.codes)
}

func TestExecuteAllocatesCartDiscountAcrossVendors(t *testing.T) {
	f := newFixture(t)
	cheap := f.product(t, uuid.New(), 8000, 5)
	pricey := f.product(t, uuid.New(), 15000, 5)
	customerID := uuid.New()
	coupons := types.AppliedCoupons{{Code: "TAKE20", Type: enums.CouponTypeFixed, Value: 2000}}
	f.cart(t, customerID, coupons, line{cheap, 1}, line{pricey, 1})

	order, err := f.service(t).Execute(context.Background(), customerID, validInput())
	require.NoError(t, err)

	assert.Equal(t, 2000, order.DiscountCents)
	assert.Equal(t, 26140, order.TotalCents)
	sum := 0
	for _, vo := range order.VendorOrders {
		assert.Equal(t, vo.SubtotalCents+vo.TaxCents+vo.ShippingCents-vo.DiscountCents, vo.TotalCents)
		sum += vo.TotalCents
	}
	assert.Equal(t, order.TotalCents, sum)
	assert.Equal(t, 696, order.VendorOrders[0].DiscountCents)
	assert.Equal(t, 1304, order.VendorOrders[1].DiscountCents)
}

func TestExecuteReturnsCommittedOrderWhenReloadFails(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), 2500, 4)
	customerID := uuid.New()
	f.cart(t, customerID, nil, line{p, 2})

	svc := f.service(t, func(sp *ServiceParams) {
		sp.Orders = reloadFailingOrders{Repository: orders.NewRepository(f.db)}
	})
	order, err := svc.Execute(context.Background(), customerID, validInput())
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.NotEmpty(t, order.OrderNumber)
	require.Len(t, order.VendorOrders, 1)
	assert.Len(t, order.VendorOrders[0].Items, 1)
	assert.Len(t, order.History, 1)
	assert.EqualValues(t, 1, f.count(t, &models.Order{}))
	assert.Equal(t, 2, f.reload(t, p).Stock)
	require.Len(t, f.notifier.events, 1)
}

func TestExecuteRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	customerID := uuid.New()

	_, err := f.service(t).Execute(context.Background(), customerID, validInput())
	requireCode(t, err, pkgerrors.CodeEmptyCart)

	f.cart(t, customerID, nil)
	_, err = f.service(t).Execute(context.Background(), customerID, validInput())
	requireCode(t, err, pkgerrors.CodeEmptyCart)
	assert.Equal(t, []string{"EMPTY_CART", "EMPTY_CART"}, f.metrics.codes)
}

func TestExecuteRejectsUnavailableProduct(t *testing.T) {
	f := newFixture(t)
	ok := f.product(t, uuid.New(), 1000, 5)
	gone := f.product(t, uuid.New(), 1000, 5)
	require.NoError(t, f.db.Model(gone).Update("status", enums.ProductStatusInactive).Error)
	customerID := uuid.New()
	f.cart(t, customerID, nil, line{ok, 1}, line{gone, 1})

	_, err := f.service(t).Execute(context.Background(), customerID, validInput())
	typed := requireCode(t, err, pkgerrors.CodeProductUnavailable)
	details, _ := typed.Details().(map[string]any)
	assert.Equal(t, gone.ID, details["product_id"])
	assert.Equal(t, 5, f.reload(t, ok).Stock)
	assert.Zero(t, f.count(t, &models.Order{}))
}

func TestExecuteRejectsOutOfStockListings(t *testing.T) {
	outOfStock := func(p *models.Product) { p.Status = enums.ProductStatusOutOfStock }
	tests := []struct {
		name   string
		stock  int
		mutate []func(*models.Product)
		code   pkgerrors.Code
	}{
		{"untracked", 0, []func(*models.Product){outOfStock, func(p *models.Product) { p.TrackQuantity = false }}, pkgerrors.CodeProductUnavailable},
		{"backorder", 0, []func(*models.Product){outOfStock, func(p *models.Product) { p.AllowBackorder = true }}, pkgerrors.CodeProductUnavailable},
		{"restocked without status flip", 5, []func(*models.Product){outOfStock}, pkgerrors.CodeProductUnavailable},
		{"tracked and empty", 0, []func(*models.Product){outOfStock}, pkgerrors.CodeInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.product(t, uuid.New(), 1000, tt.stock, tt.mutate...)
			customerID := uuid.New()
			f.cart(t, customerID, nil, line{p, 1})

			_, err := f.service(t).Execute(context.Background(), customerID, validInput())
			requireCode(t, err, tt.code)
			assert.Equal(t, tt.stock, f.reload(t, p).Stock)
			assert.Zero(t, f.count(t, &models.Order{}))
		})
	}
}

func TestExecuteRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), 1000, 2)
	customerID := uuid.New()
	f.cart(t, customerID, nil, line{p, 3})

	_, err := f.service(t).Execute(context.Background(), customerID, validInput())
	typed := requireCode(t, err, pkgerrors.CodeInsufficientStock)
	details, _ := typed.Details().(map[string]any)
	assert.Equal(t, 2, details["available"])
	assert.Equal(t, 3, details["requested"])
}

func TestExecuteAllowsBackorderAndUntrackedProducts(t *testing.T) {
	f := newFixture(t)
	backorder := f.product(t, uuid.New(), 1000, 1, func(p *models.Product) { p.AllowBackorder = true })
	untracked := f.product(t, uuid.New(), 1000, 0, func(p *models.Product) { p.TrackQuantity = false })
	customerID := uuid.New()
	f.cart(t, customerID, nil, line{backorder, 3}, line{untracked, 2})

	order, err := f.service(t).Execute(context.Background(), customerID, validInput())
	require.NoError(t, err)
	assert.Equal(t, -2, f.reload(t, backorder).Stock)
	assert.Equal(t, 0, f.reload(t, untracked).Stock)
	assert.False(t, order.VendorOrders[1].Items[0].StockTracked)
}

func TestExecuteValidatesAddressAndPaymentAfterCartChecks(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), 1000, 5)
	customerID := uuid.New()
	f.cart(t, customerID, nil, line{p, 1})

	input := validInput()
	input.ShippingAddress.City = ""
	_, err := f.service(t).Execute(context.Background(), customerID, input)
	requireCode(t, err, pkgerrors.CodeValidation)

	input = validInput()
	input.PaymentMethod = "barter"
	_, err = f.service(t).Execute(context.Background(), customerID, input)
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, 5, f.reload(t, p).Stock)
}

func TestExecuteLastUnitGoesToExactlyOneCustomer(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), 1000, 1)
	first, second := uuid.New(), uuid.New()
	f.cart(t, first, nil, line{p, 1})
	f.cart(t, second, nil, line{p, 1})
	svc := f.service(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, customerID := range []uuid.UUID{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Execute(context.Background(), customerID, validInput())
		}()
	}
	wg.Wait()

	successes, stockOuts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case pkgerrors.Is(err, pkgerrors.CodeInsufficientStock):
			stockOuts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, stockOuts)

	stored := f.reload(t, p)
	assert.Equal(t, 0, stored.Stock)
	assert.Equal(t, enums.ProductStatusOutOfStock, stored.Status)
	assert.EqualValues(t, 1, f.count(t, &models.Order{}))
}

func TestExecuteRetriesOrderNumberCollisionOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Omit("VendorOrders", "History").Create(&models.Order{
		OrderNumber:   "ORD-2610-000000001",
		CustomerID:    uuid.New(),
		CartID:        uuid.New(),
		Status:        enums.OrderStatusPending,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentStatus: enums.PaymentStatusPending,
	}).Error)

	p := f.product(t, uuid.New(), 1000, 5)
	customerID := uuid.New()
	f.cart(t, customerID, nil, line{p, 1})

	numbers := []string{"ORD-2610-000000001", "ORD-2610-000000002"}
	calls := 0
	svc := f.service(t, func(sp *ServiceParams) {
		sp.OrderNumbers = func(time.Time) string {
			n := numbers[calls]
			calls++
			return n
		}
	})

	order, err := svc.Execute(context.Background(), customerID, validInput())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "ORD-2610-000000002", order.OrderNumber)
	assert.Equal(t, "ORD-2610-000000002-A", order.VendorOrders[0].VendorOrderNumber)
}

func TestExecuteFailsWhenCollisionRepeats(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Omit("VendorOrders", "History").Create(&models.Order{
		OrderNumber:   "ORD-2610-000000001",
		CustomerID:    uuid.New(),
		CartID:        uuid.New(),
		Status:        enums.OrderStatusPending,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentStatus: enums.PaymentStatusPending,
	}).Error)

	p := f.product(t, uuid.New(), 1000, 5)
	customerID := uuid.New()
	c := f.cart(t, customerID, nil, line{p, 1})

	calls := 0
	svc := f.service(t, func(sp *ServiceParams) {
		sp.OrderNumbers = func(time.Time) string {
			calls++
			return "ORD-2610-000000001"
		}
	})

	_, err := svc.Execute(context.Background(), customerID, validInput())
	requireCode(t, err, pkgerrors.CodeCheckoutFailed)
	assert.Equal(t, 2, calls)

	var stored models.Cart
	require.NoError(t, f.db.First(&stored, "id = ?", c.ID).Error)
	assert.Equal(t, enums.CartStatusActive, stored.Status)
	assert.EqualValues(t, 1, f.count(t, &models.Order{}))
}

func TestExecuteRollsBackEverythingOnLateFailure(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), 1000, 5)
	customerID := uuid.New()
	c := f.cart(t, customerID, nil, line{p, 2})

	svc := f.service(t, func(sp *ServiceParams) { sp.Customers = failingCustomers{} })
	_, err := svc.Execute(context.Background(), customerID, validInput())
	requireCode(t, err, pkgerrors.CodeCheckoutFailed)

	stored := f.reload(t, p)
	assert.Equal(t, 5, stored.Stock)
	assert.Equal(t, 0, stored.PurchaseCount)
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.VendorOrder{}))
	assert.Zero(t, f.count(t, &models.OrderLineItem{}))

	var cartRow models.Cart
	require.NoError(t, f.db.First(&cartRow, "id = ?", c.ID).Error)
	assert.Equal(t, enums.CartStatusActive, cartRow.Status)
	assert.Empty(t, f.notifier.events)
}

func TestExecuteTimeoutAborts(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), 1000, 5)
	customerID := uuid.New()
	f.cart(t, customerID, nil, line{p, 1})

	svc := f.service(t, func(sp *ServiceParams) { sp.Timeout = time.Nanosecond })
	_, err := svc.Execute(context.Background(), customerID, validInput())
	requireCode(t, err, pkgerrors.CodeCheckoutFailed)
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Equal(t, 5, f.reload(t, p).Stock)
}

func TestCheckoutThenCancelRestoresState(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), 4000, 3)
	customerID := uuid.New()
	f.cart(t, customerID, nil, line{p, 2})

	order, err := f.service(t).Execute(context.Background(), customerID, validInput())
	require.NoError(t, err)
	assert.Equal(t, 1, f.reload(t, p).Stock)

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(f.db),
		Tx:        f.client,
		Products:  product.NewRepository(f.db),
		Customers: customers.NewRepository(f.db),
	})
	require.NoError(t, err)

	actor := orders.Actor{ID: customerID, Role: enums.ActorRoleCustomer}
	cancelled, err := ordersSvc.Cancel(context.Background(), actor, order.ID, "changed my mind about it")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	stored := f.reload(t, p)
	assert.Equal(t, 3, stored.Stock)
	assert.Equal(t, 0, stored.PurchaseCount)
	var agg models.Customer
	require.NoError(t, f.db.First(&agg, "id = ?", customerID).Error)
	assert.Equal(t, 0, agg.OrderCount)
	assert.Equal(t, 0, agg.LifetimeSpendCents)

	_, err = ordersSvc.Cancel(context.Background(), actor, order.ID, "changed my mind about it")
	requireCode(t, err, pkgerrors.CodeNotCancellable)
	assert.Equal(t, 3, f.reload(t, p).Stock)
}

func TestGenerateOrderNumberFormat(t *testing.T) {
	at := time.Date(2026, time.October, 14, 9, 30, 0, 123_000_000, time.UTC)
	n := GenerateOrderNumber(at)
	assert.Regexp(t, `^ORD-2610-\d{9}$`, n)
	assert.Equal(t, fmt.Sprintf("%06d", at.UnixMilli()%1_000_000), n[9:15])
}
