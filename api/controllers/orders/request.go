package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	"github.com/angelmondragon/marketplace-backend/internal/checkout"
	internalorders "github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type createOrderRequest struct {
	ShippingAddress types.Address       `json:"shipping_address" validate:"required"`
	BillingAddress  *types.Address      `json:"billing_address,omitempty"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method" validate:"required"`
	Notes           *string             `json:"notes,omitempty" validate:"omitempty,max=500"`
}

func (p createOrderRequest) toInput() checkout.CheckoutInput {
	input := checkout.CheckoutInput{
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		PaymentMethod:   p.PaymentMethod,
	}
	input.Notes = validators.SanitizeOptional(p.Notes, 500)
	return input
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

type vendorStatusRequest struct {
	Status         enums.VendorOrderStatus `json:"status" validate:"required"`
	TrackingNumber *string                 `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	Carrier        *string                 `json:"carrier,omitempty" validate:"omitempty,max=100"`
	Note           string                  `json:"note,omitempty" validate:"max=500"`
}

func (p vendorStatusRequest) toInput() internalorders.VendorStatusInput {
	return internalorders.VendorStatusInput{
		Status:         p.Status,
		TrackingNumber: validators.SanitizeOptional(p.TrackingNumber, 100),
		Carrier:        validators.SanitizeOptional(p.Carrier, 100),
		Note:           validators.SanitizeString(p.Note, 500),
	}
}

// actorFromRequest builds the caller identity set by the auth middleware.
func actorFromRequest(r *http.Request) (internalorders.Actor, error) {
	ctx := r.Context()
	userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil {
		return internalorders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "user context missing")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return internalorders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "role context missing")
	}
	actor := internalorders.Actor{ID: userID, Role: role}
	if raw := middleware.VendorIDFromContext(ctx); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err != nil {
			return internalorders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid vendor id")
		}
		actor.VendorID = &vendorID
	}
	return actor, nil
}
