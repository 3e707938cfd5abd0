package server

import (
	"log"
	"net/http"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/pkg/api"
)

// AuthHandler serves authenticated introspection endpoints.
type AuthHandler struct {
	directory Directory
}

// NewAuthHandler wires the handler to the directory.
func NewAuthHandler(directory Directory) *AuthHandler {
	return &AuthHandler{directory: directory}
}

// WhoAmI reports the caller as the directory currently records them. The
// admin flag comes from the directory record, not the token, so callers
// can use this to observe claim changes before their token rotates.
func (h *AuthHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		api.WriteError(w, api.CodeUnauthenticated, "You must be authenticated to perform this action.")
		return
	}

	account, err := h.directory.GetUser(r.Context(), claims.Subject)
	if err != nil {
		log.Printf("ERROR: failed to load account %s: %v", claims.Subject, err)
		api.WriteError(w, api.CodeInternal, "Failed to load account.")
		return
	}

	writeJSON(w, http.StatusOK, api.WhoAmIResponse{
		ID:            account.ID,
		Email:         account.Email,
		DisplayName:   account.DisplayName,
		EmailVerified: account.EmailVerified,
		Admin:         account.IsAdmin(),
	})
}
