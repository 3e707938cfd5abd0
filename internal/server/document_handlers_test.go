package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/db/models"
	"github.com/Nyenzo/tule-initiative/internal/docstore"
	"github.com/Nyenzo/tule-initiative/internal/middleware"
)

type memoryStore struct {
	docs map[string]docstore.Fields
}

func (s *memoryStore) Get(_ context.Context, collection, id string) (docstore.Fields, error) {
	fields, ok := s.docs[collection+"/"+id]
	if !ok {
		return nil, nil
	}
	return fields, nil
}

func (s *memoryStore) Upsert(_ context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	key := collection + "/" + id
	if merge {
		if existing, ok := s.docs[key]; ok {
			merged := docstore.Fields{}
			for k, v := range existing {
				merged[k] = v
			}
			for k, v := range fields {
				merged[k] = v
			}
			s.docs[key] = merged
			return nil
		}
	}
	s.docs[key] = fields
	return nil
}

func documentTestRouter(t *testing.T, store docstore.Store, directory Directory, verifier middleware.TokenVerifier) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Group(func(g chi.Router) {
		g.Use(middleware.NewAuthenticator(verifier, nil).Handler)
		handler := NewDocumentHandler(store, directory)
		g.Get("/v1/documents/{collection}/{docID}", handler.Get)
		g.Put("/v1/documents/{collection}/{docID}", handler.Put)
	})
	return r
}

func TestDocumentOwnerReadsAndWritesOwnProfile(t *testing.T) {
	store := &memoryStore{docs: map[string]docstore.Fields{}}
	directory := newMockDirectory(&models.Account{ID: "u1", Email: "alex@example.com"})
	handler := documentTestRouter(t, store, directory, staticVerifier{
		"token": {Subject: "u1", Email: "alex@example.com"},
	})

	req := httptest.NewRequest(http.MethodPut, "/v1/documents/users/u1?merge=true", strings.NewReader(`{"bio":"hello"}`))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/documents/users/u1", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var fields docstore.Fields
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fields))
	assert.Equal(t, "hello", fields["bio"])
}

func TestDocumentCrossUserAccessDenied(t *testing.T) {
	store := &memoryStore{docs: map[string]docstore.Fields{"users/u2": {"bio": "private"}}}
	directory := newMockDirectory(&models.Account{ID: "u1", Email: "alex@example.com"})
	handler := documentTestRouter(t, store, directory, staticVerifier{
		"token": {Subject: "u1", Email: "alex@example.com"},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/users/u2", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDocumentAdminReadsAnything(t *testing.T) {
	store := &memoryStore{docs: map[string]docstore.Fields{"users/u2": {"bio": "private"}}}
	directory := newMockDirectory(&models.Account{
		ID: "admin-1", Email: "root@example.com",
		CustomClaims: models.ClaimMap{auth.AdminClaimKey: true},
	})
	handler := documentTestRouter(t, store, directory, staticVerifier{
		"token": {Subject: "admin-1", Email: "root@example.com"},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/users/u2", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentOwnerCannotSelfAssertAdmin(t *testing.T) {
	store := &memoryStore{docs: map[string]docstore.Fields{
		"users/u1": {"email": "alex@example.com", "isAdmin": false},
	}}
	directory := newMockDirectory(&models.Account{ID: "u1", Email: "alex@example.com"})
	handler := documentTestRouter(t, store, directory, staticVerifier{
		"token": {Subject: "u1", Email: "alex@example.com"},
	})

	req := httptest.NewRequest(http.MethodPut, "/v1/documents/users/u1?merge=true", strings.NewReader(`{"isAdmin":true}`))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, false, store.docs["users/u1"]["isAdmin"])

	// Smuggling the flag in alongside harmless fields is refused the same way.
	req = httptest.NewRequest(http.MethodPut, "/v1/documents/users/u1?merge=true", strings.NewReader(`{"bio":"hello","isAdmin":true}`))
	req.Header.Set("Authorization", "Bearer token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, store.docs["users/u1"]["bio"])
}

func TestDocumentAdminMayWriteAdminField(t *testing.T) {
	store := &memoryStore{docs: map[string]docstore.Fields{}}
	directory := newMockDirectory(&models.Account{
		ID: "admin-1", Email: "root@example.com",
		CustomClaims: models.ClaimMap{auth.AdminClaimKey: true},
	})
	handler := documentTestRouter(t, store, directory, staticVerifier{
		"token": {Subject: "admin-1", Email: "root@example.com"},
	})

	req := httptest.NewRequest(http.MethodPut, "/v1/documents/users/u2?merge=true", strings.NewReader(`{"isAdmin":true}`))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDocumentGetMissingIs404(t *testing.T) {
	store := &memoryStore{docs: map[string]docstore.Fields{}}
	directory := newMockDirectory(&models.Account{ID: "u1", Email: "alex@example.com"})
	handler := documentTestRouter(t, store, directory, staticVerifier{
		"token": {Subject: "u1"},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/users/u1", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
