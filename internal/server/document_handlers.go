package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/docstore"
	"github.com/Nyenzo/tule-initiative/pkg/api"
)

// DocumentHandler serves authenticated point reads and upserts against the
// document store. Non-admin callers may only touch their own document in
// the users collection; admins may touch anything.
type DocumentHandler struct {
	store     docstore.Store
	directory Directory
}

// NewDocumentHandler wires the handler to the store and directory.
func NewDocumentHandler(store docstore.Store, directory Directory) *DocumentHandler {
	return &DocumentHandler{store: store, directory: directory}
}

// authorize checks document access for the caller. Admin status is
// re-read from the directory, matching the admin-grant endpoint.
func (h *DocumentHandler) authorize(w http.ResponseWriter, r *http.Request, collection, docID string) (auth.VerifiedClaims, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		api.WriteError(w, api.CodeUnauthenticated, "You must be authenticated to perform this action.")
		return auth.VerifiedClaims{}, false
	}

	if collection == "users" && docID == claims.Subject {
		return claims, true
	}

	caller, err := h.directory.GetUser(r.Context(), claims.Subject)
	if err != nil {
		log.Printf("ERROR: failed to re-read caller %s: %v", claims.Subject, err)
		api.WriteError(w, api.CodeUnauthenticated, "You must be authenticated to perform this action.")
		return auth.VerifiedClaims{}, false
	}
	if !caller.IsAdmin() {
		api.WriteError(w, api.CodePermissionDenied, "You may only access your own documents.")
		return auth.VerifiedClaims{}, false
	}
	return claims, true
}

// Get reads one document. A missing document is 404 with an empty body,
// distinct from a failed read.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	docID := chi.URLParam(r, "docID")

	if _, ok := h.authorize(w, r, collection, docID); !ok {
		return
	}

	fields, err := h.store.Get(r.Context(), collection, docID)
	if err != nil {
		log.Printf("ERROR: failed to read %s/%s: %v", collection, docID, err)
		api.WriteError(w, api.CodeInternal, "Failed to read document.")
		return
	}
	if fields == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

// Put upserts one document. With ?merge=true the incoming fields are laid
// over the existing document; otherwise it is replaced.
func (h *DocumentHandler) Put(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	docID := chi.URLParam(r, "docID")

	claims, ok := h.authorize(w, r, collection, docID)
	if !ok {
		return
	}

	var fields docstore.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		api.WriteError(w, api.CodeInvalidArgument, "Document body must be a JSON object.")
		return
	}

	// Privileged profile fields are only ever written through the admin
	// grant flow or by a verified admin, never by the owning user.
	if collection == "users" {
		if _, present := fields[auth.AdminClaimKey]; present {
			caller, err := h.directory.GetUser(r.Context(), claims.Subject)
			if err != nil {
				log.Printf("ERROR: failed to re-read caller %s: %v", claims.Subject, err)
				api.WriteError(w, api.CodePermissionDenied, "Only an admin may set the isAdmin field.")
				return
			}
			if !caller.IsAdmin() {
				api.WriteError(w, api.CodePermissionDenied, "Only an admin may set the isAdmin field.")
				return
			}
		}
	}

	merge := r.URL.Query().Get("merge") == "true"
	if err := h.store.Upsert(r.Context(), collection, docID, fields, merge); err != nil {
		log.Printf("ERROR: failed to upsert %s/%s: %v", collection, docID, err)
		api.WriteError(w, api.CodeInternal, "Failed to write document.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
