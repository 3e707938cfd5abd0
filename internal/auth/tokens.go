package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Nyenzo/tule-initiative/internal/db/models"
)

// Signer mints and verifies RS256 access tokens for the embedded identity
// provider. Custom claims from the account record are embedded top-level so
// a verified token alone is sufficient for authorization decisions.
type Signer struct {
	key      *rsa.PrivateKey
	keyID    string
	issuer   string
	audience string
	ttl      time.Duration
}

// NewSigner creates a Signer bound to one issuer/audience pair.
func NewSigner(key *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *Signer {
	return &Signer{
		key:      key,
		keyID:    KeyID(key),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}
}

// KeyID returns the identifier published alongside the JWKS.
func (s *Signer) KeyID() string { return s.keyID }

// TTL returns the configured access-token lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Mint issues a signed access token for the account. Registered claims are
// written first, then the account's custom claims are merged over the
// payload; custom claims may not shadow registered ones.
func (s *Signer) Mint(account *models.Account, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"email":          account.Email,
		"email_verified": account.EmailVerified,
	}
	if account.DisplayName != "" {
		claims["name"] = account.DisplayName
	}

	for k, v := range account.CustomClaims {
		claims[k] = v
	}

	// Registered claims win over any colliding custom claim.
	claims["iss"] = s.issuer
	claims["aud"] = s.audience
	claims["sub"] = account.ID
	claims["jti"] = uuid.NewString()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(s.ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature, issuer, audience, and expiry, and
// returns the shaped verified claims.
func (s *Signer) Verify(raw string) (VerifiedClaims, error) {
	parsed, err := jwt.Parse(raw,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
			}
			return &s.key.PublicKey, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	)
	if err != nil {
		return VerifiedClaims{}, fmt.Errorf("invalid token: %w", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return VerifiedClaims{}, fmt.Errorf("invalid token: unexpected claims type %T", parsed.Claims)
	}

	return ClaimsFromMap(mapClaims)
}
