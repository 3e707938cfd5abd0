// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/pkg/api"
)

// TokenVerifier checks a raw bearer token and returns verified claims.
type TokenVerifier interface {
	VerifyAccessToken(raw string) (auth.VerifiedClaims, error)
}

// Authenticator rejects requests that do not carry a verifiable bearer
// token and installs the verified claims on the request context. Routes
// matched by the skipper pass through untouched.
type Authenticator struct {
	verifier TokenVerifier
	skipper  func(r *http.Request) bool
}

// NewAuthenticator builds the middleware. A nil skipper skips nothing.
func NewAuthenticator(verifier TokenVerifier, skipper func(r *http.Request) bool) *Authenticator {
	if skipper == nil {
		skipper = func(*http.Request) bool { return false }
	}
	return &Authenticator{verifier: verifier, skipper: skipper}
}

// Handler is the middleware function.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			api.WriteError(w, api.CodeUnauthenticated, "You must be authenticated to perform this action.")
			return
		}

		claims, err := a.verifier.VerifyAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			api.WriteError(w, api.CodeUnauthenticated, "You must be authenticated to perform this action.")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetClaimsContext(r.Context(), claims)))
	})
}
