package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/customers"
	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// MinCancelReasonLength is the shortest accepted cancellation reason.
const MinCancelReasonLength = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier receives order events once the owning transaction committed.
type Notifier interface {
	Notify(ctx context.Context, event notifications.Event)
}

type lifecycleMetrics interface {
	IncCancellation()
	IncTransition(status string)
}

// Actor is the authenticated caller acting on an order.
type Actor struct {
	ID       uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
}

// vendorScope returns the vendor the actor acts for.
func (a Actor) vendorScope() uuid.UUID {
	if a.VendorID != nil {
		return *a.VendorID
	}
	return a.ID
}

// Ref converts the actor for event payloads.
func (a Actor) Ref() *notifications.ActorRef {
	return &notifications.ActorRef{UserID: a.ID, VendorID: a.VendorID, Role: string(a.Role)}
}

// HistoryEntry builds a history row attributed to the actor.
func (a Actor) HistoryEntry(orderID uuid.UUID, vendorOrderID *uuid.UUID, status, note string) models.OrderStatusEntry {
	entry := models.OrderStatusEntry{
		OrderID:       orderID,
		VendorOrderID: vendorOrderID,
		Status:        status,
		ActorID:       a.ID.String(),
		ActorRole:     a.Role,
	}
	if note = strings.TrimSpace(note); note != "" {
		entry.Note = &note
	}
	return entry
}

// VendorStatusInput is a vendor's request to advance its vendor order.
type VendorStatusInput struct {
	Status         enums.VendorOrderStatus
	TrackingNumber *string
	Carrier        *string
	Note           string
}

// Service exposes order reads and post-checkout lifecycle changes.
type Service interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error)
	List(ctx context.Context, actor Actor, params pagination.Params, status *enums.OrderStatus) (*OrderList, error)
	History(ctx context.Context, actor Actor, orderID uuid.UUID) ([]StatusEntry, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderDetail, error)
	UpdateVendorStatus(ctx context.Context, actor Actor, orderID uuid.UUID, input VendorStatusInput) (*OrderDetail, error)
	Complete(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error)
}

// ServiceParams collects the order service collaborators.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Products  product.StockRepository
	Customers customers.AggregateRepository
	Notifier  Notifier
	Metrics   lifecycleMetrics
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	products  product.StockRepository
	customers customers.AggregateRepository
	notifier  Notifier
	metrics   lifecycleMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		products:  params.Products,
		customers: params.Customers,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(actor, order); err != nil {
		return nil, err
	}
	detail := ToDetail(order, vendorFilter(actor))
	return &detail, nil
}

func (s *service) List(ctx context.Context, actor Actor, params pagination.Params, status *enums.OrderStatus) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filters := ListFilters{Status: status}
	switch actor.Role {
	case enums.ActorRoleAdmin:
	case enums.ActorRoleVendor:
		vendorID := actor.vendorScope()
		filters.VendorID = &vendorID
	case enums.ActorRoleCustomer:
		customerID := actor.ID
		filters.CustomerID = &customerID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}

	rows, next, err := s.repo.List(ctx, filters, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	out := &OrderList{Orders: make([]OrderSummary, 0, len(rows))}
	for _, row := range rows {
		if actor.Role == enums.ActorRoleVendor {
			row.VendorOrders = ownVendorOrders(row.VendorOrders, actor.vendorScope())
		}
		out.Orders = append(out.Orders, toSummary(row))
	}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

func (s *service) History(ctx context.Context, actor Actor, orderID uuid.UUID) ([]StatusEntry, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(actor, order); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListHistory(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order history")
	}
	return toStatusEntries(entries), nil
}

// Cancel cancels a pending or confirmed order on behalf of its customer or
// an admin, restoring tracked stock and reversing the customer aggregates.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*OrderDetail, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < MinCancelReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at least %d characters", MinCancelReasonLength)).
			WithDetails(map[string]any{"field": "reason", "min_length": MinCancelReasonLength})
	}

	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if actor.Role != enums.ActorRoleAdmin && (actor.Role != enums.ActorRoleCustomer || order.CustomerID != actor.ID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the ordering customer or an admin may cancel")
		}
		previous = order.Status

		now := s.now()
		cancelled, err := repo.Cancel(ctx, order.ID, reason, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !cancelled {
			return pkgerrors.New(pkgerrors.CodeNotCancellable, fmt.Sprintf("order in status %s cannot be cancelled", order.Status)).
				WithDetails(map[string]any{"status": order.Status})
		}
		if err := repo.CancelVendorOrders(ctx, order.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel vendor orders")
		}
		if err := repo.CancelLineItems(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel line items")
		}

		stock := s.products.WithTx(tx)
		for _, vo := range order.VendorOrders {
			for _, item := range vo.Items {
				if !item.StockTracked {
					continue
				}
				if err := stock.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
					if errors.Is(err, product.ErrNotFound) {
						s.warn(ctx, order.ID, "orders.cancel_restock_skipped_missing_product")
						continue
					}
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
				}
			}
		}

		if err := s.customers.WithTx(tx).ReverseOrder(ctx, order.CustomerID, order.TotalCents); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse customer aggregates")
		}

		entries := []models.OrderStatusEntry{actor.HistoryEntry(order.ID, nil, enums.OrderStatusCancelled.String(), reason)}
		for _, vo := range order.VendorOrders {
			if IsTerminalVendorStatus(vo.Status) {
				continue
			}
			entries = append(entries, actor.HistoryEntry(order.ID, &vo.ID, enums.VendorOrderStatusCancelled.String(), reason))
		}
		if err := repo.AppendHistory(ctx, entries...); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append history")
		}
		return nil
	})
	if err != nil {
		return nil, normalizeError(err, "cancel order")
	}

	if s.metrics != nil {
		s.metrics.IncCancellation()
	}
	return s.afterChange(ctx, actor, orderID, notifications.EventStatusChanged, previous)
}

// UpdateVendorStatus advances the caller's vendor order and re-derives the
// order status from all vendor orders.
func (s *service) UpdateVendorStatus(ctx context.Context, actor Actor, orderID uuid.UUID, input VendorStatusInput) (*OrderDetail, error) {
	if actor.Role != enums.ActorRoleVendor {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors may update vendor order status")
	}
	if !slices.Contains(VendorUpdatableStatuses, input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %q cannot be set by a vendor", input.Status)).
			WithDetails(map[string]any{"field": "status", "allowed": VendorUpdatableStatuses})
	}

	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockByID(ctx, orderID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		previous = order.Status

		vendorID := actor.vendorScope()
		idx := slices.IndexFunc(order.VendorOrders, func(vo models.VendorOrder) bool { return vo.VendorID == vendorID })
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeForbidden, "vendor has no part in this order")
		}
		vo := &order.VendorOrders[idx]
		if err := ValidateVendorTransition(vo.Status, input.Status); err != nil {
			return err
		}

		now := s.now()
		updates := map[string]any{"updated_at": now}
		if input.TrackingNumber != nil {
			updates["tracking_number"] = strings.TrimSpace(*input.TrackingNumber)
		}
		if input.Carrier != nil {
			updates["carrier"] = strings.TrimSpace(*input.Carrier)
		}
		switch input.Status {
		case enums.VendorOrderStatusShipped:
			if vo.ShippedAt == nil {
				updates["shipped_at"] = now
			}
		case enums.VendorOrderStatusDelivered:
			if vo.ShippedAt == nil {
				updates["shipped_at"] = now
			}
			updates["delivered_at"] = now
		}

		ok, err := repo.UpdateVendorOrderStatus(ctx, vo.ID, vo.Status, input.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor order")
		}
		if !ok {
			return invalidTransition(string(vo.Status), string(input.Status), "vendor order changed concurrently")
		}
		vo.Status = input.Status

		entries := []models.OrderStatusEntry{actor.HistoryEntry(order.ID, &vo.ID, input.Status.String(), input.Note)}

		statuses := make([]enums.VendorOrderStatus, 0, len(order.VendorOrders))
		for _, other := range order.VendorOrders {
			statuses = append(statuses, other.Status)
		}
		if derived := DeriveOrderStatus(order.Status, statuses); derived != order.Status {
			ok, err := repo.UpdateOrderStatus(ctx, order.ID, order.Status, derived, map[string]any{"updated_at": now})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !ok {
				return invalidTransition(string(order.Status), string(derived), "order changed concurrently")
			}
			entries = append(entries, actor.HistoryEntry(order.ID, nil, derived.String(), "derived from vendor orders"))
		}

		if err := repo.AppendHistory(ctx, entries...); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append history")
		}
		return nil
	})
	if err != nil {
		return nil, normalizeError(err, "update vendor order status")
	}

	if s.metrics != nil {
		s.metrics.IncTransition(input.Status.String())
	}
	return s.afterChange(ctx, actor, orderID, notifications.EventStatusChanged, previous)
}

// Complete closes a delivered order. Only admins may complete orders.
func (s *service) Complete(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error) {
	if actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may complete orders")
	}

	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if order.Status != enums.OrderStatusDelivered {
			return invalidTransition(string(order.Status), string(enums.OrderStatusCompleted), "only delivered orders can be completed")
		}
		if err := ValidateOrderTransition(order.Status, enums.OrderStatusCompleted); err != nil {
			return err
		}

		now := s.now()
		ok, err := repo.UpdateOrderStatus(ctx, order.ID, order.Status, enums.OrderStatusCompleted, map[string]any{
			"completed_at": now,
			"updated_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		if !ok {
			return invalidTransition(string(order.Status), string(enums.OrderStatusCompleted), "order changed concurrently")
		}
		entry := actor.HistoryEntry(order.ID, nil, enums.OrderStatusCompleted.String(), "")
		if err := repo.AppendHistory(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append history")
		}
		return nil
	})
	if err != nil {
		return nil, normalizeError(err, "complete order")
	}

	if s.metrics != nil {
		s.metrics.IncTransition(enums.OrderStatusCompleted.String())
	}
	return s.afterChange(ctx, actor, orderID, notifications.EventStatusChanged, previous)
}

// afterChange reloads the committed order, emits the event and renders the
// caller's view.
func (s *service) afterChange(ctx context.Context, actor Actor, orderID uuid.UUID, typ notifications.EventType, previous enums.OrderStatus) (*OrderDetail, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		prev := ""
		if previous != order.Status {
			prev = previous.String()
		}
		s.notifier.Notify(ctx, notifications.NewOrderEvent(typ, order, prev, actor.Ref()))
	}
	detail := ToDetail(order, vendorFilter(actor))
	return &detail, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) warn(ctx context.Context, orderID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), msg)
}

func authorizeRead(actor Actor, order *models.Order) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleCustomer:
		if order.CustomerID == actor.ID {
			return nil
		}
	case enums.ActorRoleVendor:
		if order.HasVendor(actor.vendorScope()) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
}

func vendorFilter(actor Actor) *uuid.UUID {
	if actor.Role != enums.ActorRoleVendor {
		return nil
	}
	id := actor.vendorScope()
	return &id
}

func ownVendorOrders(all []models.VendorOrder, vendorID uuid.UUID) []models.VendorOrder {
	out := make([]models.VendorOrder, 0, 1)
	for _, vo := range all {
		if vo.VendorID == vendorID {
			out = append(out, vo)
		}
	}
	return out
}

func normalizeError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
