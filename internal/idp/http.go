package idp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the identity provider over HTTP: account registration,
// the OAuth2-shaped token endpoint, token revocation, userinfo, and the
// published JWKS. All routes are public; userinfo authenticates its own
// bearer token.
type Handler struct {
	provider *Provider
}

// NewHandler wraps a Provider for HTTP serving.
func NewHandler(provider *Provider) *Handler {
	return &Handler{provider: provider}
}

// Register attaches the identity endpoints to the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/accounts", h.handleSignUp)
	r.Post("/v1/token", h.handleToken)
	r.Post("/v1/revoke", h.handleRevoke)
	r.Get("/v1/userinfo", h.handleUserInfo)
	r.Get("/.well-known/jwks.json", h.handleJWKS)
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type signUpResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
	Tokens      *TokenPair `json:"tokens"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	account, pair, err := h.provider.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailInUse):
			writeOAuthError(w, http.StatusConflict, "email_exists", "an account with this email already exists")
		case errors.Is(err, ErrWeakPassword):
			writeOAuthError(w, http.StatusBadRequest, "weak_password", "password must be at least 6 characters")
		case errors.Is(err, ErrInvalidCredentials):
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "email is required")
		default:
			log.Printf("ERROR: sign up failed: %v", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to create account")
		}
		return
	}

	writeJSON(w, http.StatusCreated, signUpResponse{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Tokens:      pair,
	})
}

// handleToken implements the password and refresh_token grants with
// form-encoded requests and OAuth2 JSON responses, so standard OAuth2
// clients can drive it directly.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	var (
		pair *TokenPair
		err  error
	)
	switch grant := r.PostFormValue("grant_type"); grant {
	case "password":
		pair, err = h.provider.SignInWithPassword(r.Context(),
			r.PostFormValue("username"), r.PostFormValue("password"))
	case "refresh_token":
		pair, err = h.provider.Refresh(r.Context(), r.PostFormValue("refresh_token"))
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be password or refresh_token")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			writeOAuthError(w, http.StatusUnauthorized, "invalid_grant", "invalid email or password")
		case errors.Is(err, ErrAccountDisabled):
			writeOAuthError(w, http.StatusForbidden, "invalid_grant", "account is disabled")
		case errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrTokenExpired):
			writeOAuthError(w, http.StatusUnauthorized, "invalid_grant", "refresh token is no longer valid")
		default:
			log.Printf("ERROR: token grant failed: %v", err)
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to issue tokens")
		}
		return
	}

	// Token responses must not be cached (RFC 6749 §5.1).
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if err := h.provider.RevokeRefreshToken(r.Context(), r.PostFormValue("token")); err != nil {
		log.Printf("ERROR: revoke failed: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to revoke token")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type userInfoResponse struct {
	Subject       string         `json:"sub"`
	Email         string         `json:"email,omitempty"`
	Name          string         `json:"name,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	Claims        map[string]any `json:"claims"`
}

// handleUserInfo returns the directory record behind the presented access
// token. The claims payload is read from the directory, not the token, so a
// fresh sign-in or refresh here always observes current custom claims.
func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
		return
	}

	claims, err := h.provider.VerifyAccessToken(raw)
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
		return
	}

	account, err := h.provider.GetUser(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "account no longer exists")
			return
		}
		log.Printf("ERROR: userinfo lookup failed: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, userInfoResponse{
		Subject:       account.ID,
		Email:         account.Email,
		Name:          account.DisplayName,
		EmailVerified: account.EmailVerified,
		Claims:        account.CustomClaims,
	})
}

func (h *Handler) handleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, h.provider.JWKS())
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, oauthError{Error: code, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode response: %v", err)
	}
}
