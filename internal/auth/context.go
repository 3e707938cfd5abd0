package auth

import "context"

type claimsContextKey struct{}

// SetClaimsContext stores verified claims on the context for downstream consumers.
func SetClaimsContext(ctx context.Context, claims VerifiedClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext retrieves verified claims from the context.
// The second return value is false when the request carried no verified
// caller identity.
func ClaimsFromContext(ctx context.Context) (VerifiedClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(VerifiedClaims)
	return claims, ok
}
