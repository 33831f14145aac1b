package helpers

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// StructuralValidator checks addresses and payment methods for shape only.
type StructuralValidator struct {
	validate *validator.Validate
}

func NewStructuralValidator() *StructuralValidator {
	return &StructuralValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateAddress rejects addresses missing required parts.
func (v *StructuralValidator) ValidateAddress(kind string, addr types.Address) error {
	if err := v.validate.Struct(addr); err != nil {
		fields := map[string]string{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid "+kind+" address").
			WithDetails(map[string]any{"address": kind, "fields": fields})
	}
	return nil
}

// ValidatePayment accepts any known payment method.
func (v *StructuralValidator) ValidatePayment(method enums.PaymentMethod) error {
	if !method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"payment_method": method})
	}
	return nil
}
