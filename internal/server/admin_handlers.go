package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/casbin/casbin/v2"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/db/models"
	"github.com/Nyenzo/tule-initiative/pkg/api"
)

// Directory is the slice of the identity provider the admin endpoints
// need: caller re-reads, email lookup, and claim writes.
type Directory interface {
	GetUser(ctx context.Context, accountID string) (*models.Account, error)
	FindUserByEmail(ctx context.Context, email string) (*models.Account, error)
	SetCustomClaims(ctx context.Context, accountID string, patch map[string]any) error
}

// AdminHandler serves the role-administration endpoints.
type AdminHandler struct {
	directory Directory
	enforcer  casbin.IEnforcer
}

// NewAdminHandler wires the handler to the directory and enforcer.
func NewAdminHandler(directory Directory, enforcer casbin.IEnforcer) *AdminHandler {
	return &AdminHandler{directory: directory, enforcer: enforcer}
}

// GrantAdmin promotes the user identified by email in the request body to
// admin by merging isAdmin=true into their custom claims.
//
// The caller's privilege is always re-read from the directory here rather
// than taken from the presented token, so a just-revoked admin cannot ride
// a stale token through this endpoint. The write is a merge, so repeating
// the call for an existing admin succeeds and changes nothing.
func (h *AdminHandler) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Step 1: the caller must be authenticated.
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		api.WriteError(w, api.CodeUnauthenticated, "You must be authenticated to perform this action.")
		return
	}

	// Step 2: re-read the caller and check admin against current state.
	caller, err := h.directory.GetUser(ctx, claims.Subject)
	if err != nil {
		log.Printf("ERROR: failed to re-read caller %s: %v", claims.Subject, err)
		api.WriteError(w, api.CodeUnauthenticated, "You must be authenticated to perform this action.")
		return
	}

	current := claims
	current.Admin = caller.IsAdmin()
	if err := auth.ApplyClaimsGrouping(h.enforcer, caller.ID, current); err != nil {
		log.Printf("ERROR: failed to apply role grouping for %s: %v", caller.ID, err)
		api.WriteError(w, api.CodeInternal, fmt.Sprintf("Error setting admin role: %s", err))
		return
	}

	allowed, err := auth.Authorize(h.enforcer, caller.ID, auth.ObjectTypeIAM, auth.IAMGrantAdmin)
	if err != nil {
		log.Printf("ERROR: authorization check failed for %s: %v", caller.ID, err)
		api.WriteError(w, api.CodeInternal, fmt.Sprintf("Error setting admin role: %s", err))
		return
	}
	if !allowed {
		api.WriteError(w, api.CodePermissionDenied, "You must be an admin to perform this action.")
		return
	}

	// Step 3: validate the request.
	var req api.GrantAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		api.WriteError(w, api.CodeInvalidArgument, "Email is required.")
		return
	}

	// Step 4: resolve the target.
	target, err := h.directory.FindUserByEmail(ctx, req.Email)
	if err != nil {
		log.Printf("ERROR: failed to look up %s: %v", req.Email, err)
		api.WriteError(w, api.CodeInternal, fmt.Sprintf("Error setting admin role: %s", err))
		return
	}

	// Step 5: merge the admin claim onto the target.
	if err := h.directory.SetCustomClaims(ctx, target.ID, map[string]any{auth.AdminClaimKey: true}); err != nil {
		log.Printf("ERROR: failed to set admin claim for %s: %v", target.ID, err)
		api.WriteError(w, api.CodeInternal, fmt.Sprintf("Error setting admin role: %s", err))
		return
	}

	log.Printf("INFO: %s granted admin to %s", caller.Email, req.Email)
	writeJSON(w, http.StatusOK, api.GrantAdminResponse{
		Message: fmt.Sprintf("Success! %s is now an admin.", req.Email),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode response: %v", err)
	}
}
