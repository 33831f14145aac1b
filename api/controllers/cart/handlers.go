package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	cartdto "github.com/angelmondragon/marketplace-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	cartsvc "github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type cartCall func(r *http.Request, customerID uuid.UUID) (*models.Cart, error)

// handle resolves the customer, runs call and writes the recomputed cart.
func handle(svc cartsvc.Service, logg *logger.Logger, status int, call cartCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		customerID, err := customerIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := call(r, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, status, newCartResponse(record))
	}
}

// CartFetch returns the caller's active cart, creating it when absent.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, customerID uuid.UUID) (*models.Cart, error) {
		return svc.Get(r.Context(), customerID)
	})
}

// CartAddItem adds a product line or merges it into a matching one.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusCreated, func(r *http.Request, customerID uuid.UUID) (*models.Cart, error) {
		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), customerID, toAddItemInput(payload))
	})
}

func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, customerID uuid.UUID) (*models.Cart, error) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			return nil, err
		}
		var payload cartdto.UpdateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateQuantity(r.Context(), customerID, itemID, payload.Quantity)
	})
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, customerID uuid.UUID) (*models.Cart, error) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), customerID, itemID)
	})
}

// CartClear empties the cart of items and coupons.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, customerID uuid.UUID) (*models.Cart, error) {
		return svc.Clear(r.Context(), customerID)
	})
}

func CartApplyCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, customerID uuid.UUID) (*models.Cart, error) {
		var payload cartdto.ApplyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ApplyCoupon(r.Context(), customerID, payload.Code)
	})
}

func CartRemoveCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, customerID uuid.UUID) (*models.Cart, error) {
		return svc.RemoveCoupon(r.Context(), customerID, chi.URLParam(r, "code"))
	})
}
