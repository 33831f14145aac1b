package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	"github.com/angelmondragon/marketplace-backend/internal/checkout"
	internalorders "github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Create converts the caller's cart into an order.
func Create(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if actor.Role != enums.ActorRoleCustomer {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can place orders"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), actor.ID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.ToDetail(order, nil))
	}
}

// List returns a page of orders visible to the caller, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		list, err := svc.List(r.Context(), actor, params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order with the slice the caller may see.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, "orders service unavailable", func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		return svc.Get(r.Context(), actor, orderID)
	})
}

// Cancel cancels a pending or confirmed order and restores its stock.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, "orders service unavailable", func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), actor, orderID, validators.SanitizeString(payload.Reason, 500))
	})
}

// VendorStatus advances the caller's vendor order on the order.
func VendorStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, "orders service unavailable", func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		var payload vendorStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateVendorStatus(r.Context(), actor, orderID, payload.toInput())
	})
}

// Complete closes a delivered order. Admin only.
func Complete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, "orders service unavailable", func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		return svc.Complete(r.Context(), actor, orderID)
	})
}

// History lists the status transitions recorded for an order.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, "orders service unavailable", func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error) {
		return svc.History(r.Context(), actor, orderID)
	})
}

type orderCall func(r *http.Request, actor internalorders.Actor, orderID uuid.UUID) (any, error)

// withOrder resolves the actor and the {orderId} path parameter before call.
func withOrder(svc internalorders.Service, logg *logger.Logger, unavailable string, call orderCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, unavailable))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := call(r, actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, out)
	}
}
