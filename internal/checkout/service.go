package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/checkout/helpers"
	"github.com/angelmondragon/marketplace-backend/internal/customers"
	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// DefaultTimeout bounds one checkout when no timeout is configured.
const DefaultTimeout = 10 * time.Second

var orderNumberConstraints = []string{"ux_orders_order_number", "orders.order_number"}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Validator checks the address and payment inputs once the cart passed its
// own preconditions.
type Validator interface {
	ValidateAddress(kind string, addr types.Address) error
	ValidatePayment(method enums.PaymentMethod) error
}

type checkoutMetrics interface {
	ObserveCheckout(code string, vendorOrders int, duration time.Duration)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, customerID uuid.UUID, input CheckoutInput) (*models.Order, error)
}

// CheckoutInput captures the order details supplied at checkout. A nil
// billing address reuses the shipping address.
type CheckoutInput struct {
	ShippingAddress types.Address
	BillingAddress  *types.Address
	PaymentMethod   enums.PaymentMethod
	Notes           *string
}

// ServiceParams collects the checkout collaborators.
type ServiceParams struct {
	Tx           txRunner
	Carts        cart.CartRepository
	Orders       orders.Repository
	Products     product.StockRepository
	Customers    customers.AggregateRepository
	Validator    Validator
	Notifier     orders.Notifier
	Metrics      checkoutMetrics
	Logger       *logger.Logger
	Timeout      time.Duration
	OrderNumbers NumberGenerator
}

type service struct {
	tx        txRunner
	carts     cart.CartRepository
	orders    orders.Repository
	products  product.StockRepository
	customers customers.AggregateRepository
	validator Validator
	notifier  orders.Notifier
	metrics   checkoutMetrics
	logg      *logger.Logger
	timeout   time.Duration
	numbers   NumberGenerator
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	validator := params.Validator
	if validator == nil {
		validator = helpers.NewStructuralValidator()
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	numbers := params.OrderNumbers
	if numbers == nil {
		numbers = GenerateOrderNumber
	}
	return &service{
		tx:        params.Tx,
		carts:     params.Carts,
		orders:    params.Orders,
		products:  params.Products,
		customers: params.Customers,
		validator: validator,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		logg:      params.Logger,
		timeout:   timeout,
		numbers:   numbers,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Execute converts the customer's active cart into an order. Either every
// write commits or none does.
func (s *service) Execute(ctx context.Context, customerID uuid.UUID, input CheckoutInput) (*models.Order, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		placed       *models.Order
		vendorOrders int
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		record, products, err := s.checkPreconditions(ctx, tx, customerID, input)
		if err != nil {
			return err
		}
		order, err := s.placeOrder(ctx, tx, record, products, input)
		if err != nil {
			return err
		}
		placed = order
		vendorOrders = len(order.VendorOrders)
		return nil
	})
	if err != nil {
		err = checkoutError(err)
		s.observe(pkgerrors.As(err).Code(), 0, started)
		if s.logg != nil {
			logCtx := s.logg.WithUserID(ctx, customerID.String())
			s.logg.Warn(s.logg.WithField(logCtx, "code", string(pkgerrors.As(err).Code())), "checkout.failed")
		}
		return nil, err
	}

	s.observe("", vendorOrders, started)

	// The order is committed; a failed reload falls back to the graph built
	// in the transaction.
	order, err := s.orders.FindByID(context.WithoutCancel(ctx), placed.ID)
	if err != nil {
		order = placed
		if s.logg != nil {
			logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, customerID.String()), placed.ID.String())
			s.logg.Warn(s.logg.WithError(logCtx, err), "checkout.reload_failed")
		}
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, customerID.String()), order.ID.String())
		s.logg.Info(s.logg.WithField(logCtx, "vendor_orders", vendorOrders), "checkout.completed")
	}
	if s.notifier != nil {
		actor := &notifications.ActorRef{UserID: customerID, Role: string(enums.ActorRoleCustomer)}
		s.notifier.Notify(ctx, notifications.NewOrderEvent(notifications.EventOrderCreated, order, "", actor))
	}
	return order, nil
}

// checkPreconditions runs the ordered checks whose errors reach the caller
// unchanged: empty cart, unavailable product, insufficient stock, inputs.
func (s *service) checkPreconditions(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, input CheckoutInput) (*models.Cart, map[uuid.UUID]*models.Product, error) {
	record, err := s.carts.WithTx(tx).FindActive(ctx, customerID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		return nil, nil, err
	}
	if len(record.Items) == 0 || !record.ExpiresAt.After(s.now()) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	ids := make([]uuid.UUID, 0, len(record.Items))
	requested := make(map[uuid.UUID]int, len(record.Items))
	for _, item := range record.Items {
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}
	products, err := s.products.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	for _, item := range record.Items {
		prod := products[item.ProductID]
		if prod != nil && soldOut(prod, requested[item.ProductID]) {
			return nil, nil, insufficientStock(prod, requested[item.ProductID])
		}
		if prod == nil || prod.Status != enums.ProductStatusActive {
			return nil, nil, pkgerrors.New(pkgerrors.CodeProductUnavailable, fmt.Sprintf("%s is no longer available", item.ProductName)).
				WithDetails(map[string]any{"item_id": item.ID, "product_id": item.ProductID, "product_name": item.ProductName})
		}
	}
	for _, id := range ids {
		prod := products[id]
		if prod.EnforcesStock() && prod.Stock < requested[id] {
			return nil, nil, insufficientStock(prod, requested[id])
		}
	}

	if err := s.validator.ValidateAddress("shipping", input.ShippingAddress); err != nil {
		return nil, nil, err
	}
	if input.BillingAddress != nil {
		if err := s.validator.ValidateAddress("billing", *input.BillingAddress); err != nil {
			return nil, nil, err
		}
	}
	if err := s.validator.ValidatePayment(input.PaymentMethod); err != nil {
		return nil, nil, err
	}
	return record, products, nil
}

func (s *service) placeOrder(ctx context.Context, tx *gorm.DB, record *models.Cart, products map[uuid.UUID]*models.Product, input CheckoutInput) (*models.Order, error) {
	groups, err := helpers.SplitByVendor(record.Items, products)
	if err != nil {
		return nil, err
	}
	summary := cart.ApplySummary(record)
	helpers.ApplyDiscount(groups, summary.DiscountCents)

	billing := input.ShippingAddress
	if input.BillingAddress != nil {
		billing = *input.BillingAddress
	}
	order := &models.Order{
		CustomerID:      record.CustomerID,
		CartID:          record.ID,
		Status:          enums.OrderStatusPending,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPending,
		Coupons:         record.Coupons,
		Notes:           input.Notes,
	}
	for _, g := range groups {
		order.SubtotalCents += g.SubtotalCents
		order.TaxCents += g.TaxCents
		order.ShippingCents += g.ShippingCents
		order.DiscountCents += g.DiscountCents
		order.TotalCents += g.TotalCents
	}

	repo := s.orders.WithTx(tx)
	if err := s.insertOrder(ctx, tx, repo, order); err != nil {
		return nil, err
	}

	for i, g := range groups {
		vo := models.VendorOrder{
			OrderID:           order.ID,
			VendorOrderNumber: helpers.VendorOrderNumber(order.OrderNumber, i),
			VendorID:          g.VendorID,
			Position:          i,
			Status:            enums.VendorOrderStatusPending,
			SubtotalCents:     g.SubtotalCents,
			TaxCents:          g.TaxCents,
			ShippingCents:     g.ShippingCents,
			DiscountCents:     g.DiscountCents,
			TotalCents:        g.TotalCents,
		}
		if err := repo.CreateVendorOrder(ctx, &vo); err != nil {
			return nil, fmt.Errorf("create vendor order: %w", err)
		}
		items := make([]models.OrderLineItem, 0, len(g.Items))
		for j, item := range g.Items {
			prod := products[item.ProductID]
			items = append(items, models.OrderLineItem{
				OrderID:          order.ID,
				VendorOrderID:    vo.ID,
				ProductID:        item.ProductID,
				Position:         j,
				ProductName:      item.ProductName,
				SKU:              item.SKU,
				ImageURL:         item.ImageURL,
				Brand:            item.Brand,
				Category:         item.Category,
				Description:      prod.Description,
				Quantity:         item.Quantity,
				UnitPriceCents:   item.UnitPriceCents,
				TotalPriceCents:  g.LineTotals[j],
				SelectedVariants: item.SelectedVariants,
				StockTracked:     prod.TrackQuantity,
				Status:           enums.LineItemStatusPending,
			})
		}
		if err := repo.CreateLineItems(ctx, items); err != nil {
			return nil, fmt.Errorf("create line items: %w", err)
		}
		vo.Items = items
		order.VendorOrders = append(order.VendorOrders, vo)
	}

	if err := s.decrementStock(ctx, tx, record.Items, products); err != nil {
		return nil, err
	}

	converted, err := s.carts.WithTx(tx).MarkConverted(ctx, record.ID, order.ID)
	if err != nil {
		return nil, err
	}
	if !converted {
		return nil, fmt.Errorf("cart %s is no longer active", record.ID)
	}

	if err := s.customers.WithTx(tx).RecordOrder(ctx, record.CustomerID, order.TotalCents); err != nil {
		return nil, err
	}

	entry := models.OrderStatusEntry{
		OrderID:   order.ID,
		Status:    enums.OrderStatusPending.String(),
		ActorID:   record.CustomerID.String(),
		ActorRole: enums.ActorRoleCustomer,
	}
	if err := repo.AppendHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}
	order.History = append(order.History, entry)
	return order, nil
}

// insertOrder writes the order header, drawing a second number once when
// the first collides with an existing order.
func (s *service) insertOrder(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order) error {
	const attempts = 2
	for attempt := 1; ; attempt++ {
		order.OrderNumber = s.numbers(s.now())
		err := db.WithSavepoint(tx, fmt.Sprintf("order_number_%d", attempt), func(sp *gorm.DB) error {
			return repo.WithTx(sp).CreateOrder(ctx, order)
		})
		if err == nil {
			return nil
		}
		if attempt >= attempts || !db.IsUniqueViolation(err, orderNumberConstraints...) {
			return fmt.Errorf("create order: %w", err)
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "order_number", order.OrderNumber), "checkout.order_number_collision")
		}
	}
}

// decrementStock re-validates stock at the storage layer. A product that
// lost the race to a concurrent checkout fails the whole order.
func (s *service) decrementStock(ctx context.Context, tx *gorm.DB, items []models.CartItem, products map[uuid.UUID]*models.Product) error {
	stock := s.products.WithTx(tx)
	order := make([]uuid.UUID, 0, len(items))
	quantities := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if _, seen := quantities[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	for _, id := range order {
		prod := products[id]
		if !prod.TrackQuantity {
			continue
		}
		ok, err := stock.DecrementStock(ctx, id, quantities[id])
		if err != nil {
			return err
		}
		if !ok {
			current, findErr := stock.FindByID(ctx, id)
			if findErr == nil {
				prod = current
			}
			return insufficientStock(prod, quantities[id])
		}
	}
	return nil
}

func (s *service) observe(code pkgerrors.Code, vendorOrders int, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveCheckout(string(code), vendorOrders, time.Since(started))
}

// soldOut reports a product flagged out_of_stock whose tracked stock cannot
// cover the request, so a lost race surfaces as INSUFFICIENT_STOCK rather
// than PRODUCT_UNAVAILABLE. Any other non-active product is unavailable.
func soldOut(prod *models.Product, requested int) bool {
	return prod.Status == enums.ProductStatusOutOfStock && prod.EnforcesStock() && prod.Stock < requested
}

func insufficientStock(prod *models.Product, requested int) error {
	available := prod.Stock
	if available < 0 {
		available = 0
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d of %s left", available, prod.Name)).
		WithDetails(map[string]any{"product_id": prod.ID, "requested": requested, "available": available})
}

// checkoutError surfaces typed errors and replaces everything else with the
// generic checkout failure.
func checkoutError(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeCheckoutFailed, err, "checkout failed")
}
