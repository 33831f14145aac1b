package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/internal/pricing"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

const (
	MinQuantity = 1
	MaxQuantity = 100

	DefaultTTL = 168 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type duplicateGuard interface {
	Check(ctx context.Context, customerID, productID uuid.UUID) error
	Release(ctx context.Context, customerID, productID uuid.UUID) error
}

// Service exposes the customer cart operations. Every mutation returns the
// cart with a freshly computed summary.
type Service interface {
	Get(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, customerID uuid.UUID, input AddItemInput) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, customerID, itemID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, customerID, itemID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	ApplyCoupon(ctx context.Context, customerID uuid.UUID, code string) (*models.Cart, error)
	RemoveCoupon(ctx context.Context, customerID uuid.UUID, code string) (*models.Cart, error)
}

// VariantInput names one variant option chosen by the customer.
type VariantInput struct {
	Name  string
	Value string
}

// AddItemInput is the payload for adding a product to the cart.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	Variants  []VariantInput
}

// ServiceParams collects the cart service collaborators.
type ServiceParams struct {
	Repo     CartRepository
	Tx       txRunner
	Products product.StockRepository
	Coupons  coupons.Catalog
	Guard    duplicateGuard
	TTL      time.Duration
	Logger   *logger.Logger
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products product.StockRepository
	coupons  coupons.Catalog
	guard    duplicateGuard
	ttl      time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon catalog required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("duplicate guard required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		products: params.Products,
		coupons:  params.Coupons,
		guard:    params.Guard,
		ttl:      ttl,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get returns the active cart, creating one on first access.
func (s *service) Get(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	var out *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.loadActive(ctx, s.repo.WithTx(tx), customerID)
		if err != nil {
			return err
		}
		ApplySummary(cart)
		out = cart
		return nil
	})
	if err != nil {
		return nil, normalizeError(err, "load cart")
	}
	return out, nil
}

func (s *service) AddItem(ctx context.Context, customerID uuid.UUID, input AddItemInput) (*models.Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if err := s.guard.Check(ctx, customerID, input.ProductID); err != nil {
		return nil, err
	}

	cart, err := s.addItem(ctx, customerID, input)
	if err != nil {
		if relErr := s.guard.Release(ctx, customerID, input.ProductID); relErr != nil && s.logg != nil {
			s.logg.Error(ctx, "cart.dedup_release_failed", relErr)
		}
		return nil, err
	}
	return cart, nil
}

func (s *service) addItem(ctx context.Context, customerID uuid.UUID, input AddItemInput) (*models.Cart, error) {
	if err := validateQuantity(input.Quantity); err != nil {
		return nil, err
	}
	return s.mutate(ctx, customerID, func(tx *gorm.DB, repo CartRepository, cart *models.Cart) error {
		prod, err := s.loadSellable(ctx, tx, input.ProductID)
		if err != nil {
			return err
		}
		variants, err := resolveVariants(prod, input.Variants)
		if err != nil {
			return err
		}

		existing := findLine(cart.Items, prod.ID, variants.Key())
		quantity := input.Quantity
		if existing != nil {
			quantity += existing.Quantity
		}
		if quantity > MaxQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity cannot exceed %d", MaxQuantity)).
				WithDetails(map[string]any{"product_id": prod.ID, "max": MaxQuantity, "requested": quantity})
		}
		if err := checkStock(prod, quantity); err != nil {
			return err
		}

		if existing != nil {
			existing.Quantity = quantity
			existing.StockStatus = prod.StockStatus()
			existing.TotalPriceCents = pricing.ItemTotal(lineOf(*existing))
			return repo.UpdateItemQuantity(ctx, existing)
		}

		item := &models.CartItem{
			CartID:           cart.ID,
			ProductID:        prod.ID,
			VendorID:         prod.VendorID,
			Position:         nextPosition(cart.Items),
			Quantity:         quantity,
			UnitPriceCents:   prod.PriceCents,
			SelectedVariants: variants,
			ProductName:      prod.Name,
			SKU:              prod.SKU,
			ImageURL:         prod.ImageURL,
			Brand:            prod.Brand,
			Category:         prod.Category,
			StockStatus:      prod.StockStatus(),
		}
		item.TotalPriceCents = pricing.ItemTotal(lineOf(*item))
		return repo.InsertItem(ctx, item)
	})
}

func (s *service) UpdateQuantity(ctx context.Context, customerID, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.mutate(ctx, customerID, func(tx *gorm.DB, repo CartRepository, cart *models.Cart) error {
		item := findItem(cart.Items, itemID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		prod, err := s.loadSellable(ctx, tx, item.ProductID)
		if err != nil {
			return err
		}
		if err := checkStock(prod, quantity); err != nil {
			return err
		}
		item.Quantity = quantity
		item.StockStatus = prod.StockStatus()
		item.TotalPriceCents = pricing.ItemTotal(lineOf(*item))
		return repo.UpdateItemQuantity(ctx, item)
	})
}

func (s *service) RemoveItem(ctx context.Context, customerID, itemID uuid.UUID) (*models.Cart, error) {
	return s.mutate(ctx, customerID, func(_ *gorm.DB, repo CartRepository, cart *models.Cart) error {
		removed, err := repo.DeleteItem(ctx, cart.ID, itemID)
		if err != nil {
			return err
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil
	})
}

// Clear drops every line and coupon.
func (s *service) Clear(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	return s.mutate(ctx, customerID, func(_ *gorm.DB, repo CartRepository, cart *models.Cart) error {
		cart.Coupons = nil
		return repo.DeleteItems(ctx, cart.ID)
	})
}

func (s *service) ApplyCoupon(ctx context.Context, customerID uuid.UUID, code string) (*models.Cart, error) {
	normalized := coupons.NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, coupons.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if !coupon.UsableAt(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is inactive or expired").
			WithDetails(map[string]any{"code": coupon.Code})
	}

	return s.mutate(ctx, customerID, func(_ *gorm.DB, _ CartRepository, cart *models.Cart) error {
		if cart.Coupons.Has(coupon.Code) {
			return pkgerrors.New(pkgerrors.CodeConflict, "coupon already applied")
		}
		subtotal := ApplySummary(cart).SubtotalCents
		if subtotal < coupon.MinSubtotalCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart subtotal is below the coupon minimum").
				WithDetails(map[string]any{
					"code":               coupon.Code,
					"min_subtotal_cents": coupon.MinSubtotalCents,
					"subtotal_cents":     subtotal,
				})
		}
		cart.Coupons = append(cart.Coupons, types.AppliedCoupon{
			Code:  coupon.Code,
			Type:  coupon.Type,
			Value: coupon.Value,
		})
		return nil
	})
}

func (s *service) RemoveCoupon(ctx context.Context, customerID uuid.UUID, code string) (*models.Cart, error) {
	normalized := coupons.NormalizeCode(code)
	return s.mutate(ctx, customerID, func(_ *gorm.DB, _ CartRepository, cart *models.Cart) error {
		remaining, ok := cart.Coupons.Without(normalized)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not applied")
		}
		cart.Coupons = remaining
		return nil
	})
}

type mutation func(tx *gorm.DB, repo CartRepository, cart *models.Cart) error

// mutate runs fn against the active cart inside one transaction, then reloads
// the lines, recomputes the summary and refreshes the expiry.
func (s *service) mutate(ctx context.Context, customerID uuid.UUID, fn mutation) (*models.Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	var out *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.loadActive(ctx, repo, customerID)
		if err != nil {
			return err
		}
		if err := fn(tx, repo, cart); err != nil {
			return err
		}
		items, err := repo.ListItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		cart.Items = items
		ApplySummary(cart)
		cart.ExpiresAt = s.now().Add(s.ttl)
		if err := repo.SaveSummary(ctx, cart); err != nil {
			return err
		}
		out = cart
		return nil
	})
	if err != nil {
		return nil, normalizeError(err, "update cart")
	}
	return out, nil
}

// loadActive returns the live cart, retiring an expired one and creating a
// replacement when needed.
func (s *service) loadActive(ctx context.Context, repo CartRepository, customerID uuid.UUID) (*models.Cart, error) {
	now := s.now()
	cart, err := repo.FindActive(ctx, customerID)
	switch {
	case err == nil:
		if cart.ExpiresAt.After(now) {
			return cart, nil
		}
		if _, err := repo.TransitionStatus(ctx, cart.ID, enums.CartStatusActive, enums.CartStatusExpired); err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	fresh := &models.Cart{
		CustomerID: customerID,
		Status:     enums.CartStatusActive,
		ExpiresAt:  now.Add(s.ttl),
	}
	created, err := repo.CreateActive(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if created {
		return fresh, nil
	}
	// another request created the active cart first
	return repo.FindActive(ctx, customerID)
}

func (s *service) loadSellable(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	prod, err := s.products.WithTx(tx).FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}
	if prod.Status != enums.ProductStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeProductUnavailable, "product is not available").
			WithDetails(map[string]any{"product_id": prod.ID, "status": prod.Status})
	}
	return prod, nil
}

// ApplySummary recomputes line totals, coupon discounts and the cart summary
// from the lines and coupons currently on cart.
func ApplySummary(cart *models.Cart) pricing.Summary {
	lines := make([]pricing.Line, len(cart.Items))
	for i, item := range cart.Items {
		lines[i] = lineOf(item)
	}
	couponRules := make([]pricing.Coupon, len(cart.Coupons))
	for i, c := range cart.Coupons {
		couponRules[i] = pricing.Coupon{Type: c.Type, Value: c.Value}
	}

	summary := pricing.Summarize(lines, couponRules)
	for i := range cart.Items {
		if i < len(summary.LineTotals) {
			cart.Items[i].TotalPriceCents = summary.LineTotals[i]
		}
	}
	for i := range cart.Coupons {
		cart.Coupons[i].DiscountCents = 0
		if i < len(summary.CouponDiscounts) {
			cart.Coupons[i].DiscountCents = summary.CouponDiscounts[i]
		}
	}
	cart.SubtotalCents = summary.SubtotalCents
	cart.TaxCents = summary.TaxCents
	cart.ShippingCents = summary.ShippingCents
	cart.DiscountCents = summary.DiscountCents
	cart.TotalCents = summary.TotalCents
	return summary
}

func lineOf(item models.CartItem) pricing.Line {
	return pricing.Line{
		UnitPriceCents:  item.UnitPriceCents,
		AdjustmentCents: item.SelectedVariants.Adjustments(),
		Quantity:        item.Quantity,
	}
}

func validateQuantity(quantity int) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between %d and %d", MinQuantity, MaxQuantity))
	}
	return nil
}

func checkStock(prod *models.Product, quantity int) error {
	if !prod.EnforcesStock() || quantity <= prod.Stock {
		return nil
	}
	available := prod.Stock
	if available < 0 {
		available = 0
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d of %s available", available, prod.Name)).
		WithDetails(map[string]any{
			"product_id": prod.ID,
			"requested":  quantity,
			"available":  available,
		})
}

func resolveVariants(prod *models.Product, inputs []VariantInput) (types.SelectedVariants, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(inputs))
	out := make(types.SelectedVariants, 0, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		value := strings.TrimSpace(in.Value)
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("variant %q selected more than once", name))
		}
		seen[key] = struct{}{}

		variant, ok := prod.Variants.Find(name, value)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product variant").
				WithDetails(map[string]any{"name": name, "value": value})
		}
		out = append(out, types.SelectedVariant{
			Name:                 variant.Name,
			Value:                variant.Value,
			PriceAdjustmentCents: variant.PriceAdjustmentCents,
		})
	}
	return out, nil
}

func findLine(items []models.CartItem, productID uuid.UUID, variantKey string) *models.CartItem {
	for i := range items {
		if items[i].ProductID == productID && items[i].SelectedVariants.Key() == variantKey {
			return &items[i]
		}
	}
	return nil
}

func findItem(items []models.CartItem, itemID uuid.UUID) *models.CartItem {
	for i := range items {
		if items[i].ID == itemID {
			return &items[i]
		}
	}
	return nil
}

func nextPosition(items []models.CartItem) int {
	next := 0
	for _, item := range items {
		if item.Position >= next {
			next = item.Position + 1
		}
	}
	return next
}

func normalizeError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
