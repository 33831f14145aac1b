package cart

import (
	"net/http"

	"github.com/google/uuid"

	cartdto "github.com/angelmondragon/marketplace-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	cartsvc "github.com/angelmondragon/marketplace-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func customerIDFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func toAddItemInput(payload cartdto.AddItemRequest) cartsvc.AddItemInput {
	variants := make([]cartsvc.VariantInput, 0, len(payload.Variants))
	for _, v := range payload.Variants {
		variants = append(variants, cartsvc.VariantInput{
			Name:  validators.SanitizeString(v.Name, 50),
			Value: validators.SanitizeString(v.Value, 50),
		})
	}
	return cartsvc.AddItemInput{
		ProductID: payload.ProductID,
		Quantity:  payload.Quantity,
		Variants:  variants,
	}
}
