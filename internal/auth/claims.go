package auth

import (
	"fmt"
	"time"
)

// AdminClaimKey is the custom-claim key carrying the verified admin flag.
const AdminClaimKey = "isAdmin"

// VerifiedClaims holds authorization attributes obtained exclusively through
// a cryptographically verified channel: either a signature-checked token or
// a direct directory read. Authorization decisions branch only on this type,
// never on anything the client asserts about itself.
type VerifiedClaims struct {
	// Subject is the stable provider-issued account identifier.
	Subject string

	// Email is optional; some identities carry none.
	Email string

	// Name is the optional display name.
	Name string

	// EmailVerified reports whether the account's email was confirmed.
	EmailVerified bool

	// Admin is the verified admin flag (the isAdmin custom claim).
	Admin bool

	// TokenID is the jti of the token the claims were extracted from.
	// Empty for claims read directly from the directory.
	TokenID string

	// ExpiresAt bounds the validity of token-derived claims.
	ExpiresAt time.Time
}

// ClaimsFromMap extracts VerifiedClaims from a verified token payload.
// The payload must already have passed signature, issuer, and audience
// checks; this function only shapes it.
func ClaimsFromMap(claims map[string]any) (VerifiedClaims, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return VerifiedClaims{}, fmt.Errorf("token missing sub claim")
	}

	out := VerifiedClaims{Subject: sub}

	out.Email, _ = claims["email"].(string)
	out.Name, _ = claims["name"].(string)
	out.EmailVerified, _ = claims["email_verified"].(bool)
	out.Admin, _ = claims[AdminClaimKey].(bool)
	out.TokenID, _ = claims["jti"].(string)

	switch exp := claims["exp"].(type) {
	case float64:
		out.ExpiresAt = time.Unix(int64(exp), 0)
	case int64:
		out.ExpiresAt = time.Unix(exp, 0)
	}

	return out, nil
}

// Expired reports whether token-derived claims are past their validity.
func (c VerifiedClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}
