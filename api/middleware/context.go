package middleware

import "context"

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxVendorID contextKey = "vendor_id"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

// VendorIDFromContext returns the vendor a vendor-role caller acts for.
func VendorIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxVendorID)
}

// WithIdentity injects the authenticated caller into the context. Tests use
// it to skip token minting.
func WithIdentity(ctx context.Context, userID, role, vendorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if vendorID != "" {
		ctx = context.WithValue(ctx, ctxVendorID, vendorID)
	}
	return ctx
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
