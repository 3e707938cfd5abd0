package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyenzo/tule-initiative/internal/auth"
)

func newTestHandler(t *testing.T) (*Provider, http.Handler) {
	t.Helper()
	provider, _, _ := newTestProvider(t)
	r := chi.NewRouter()
	NewHandler(provider).Register(r)
	return provider, r
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleSignUpAndPasswordGrant(t *testing.T) {
	_, handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/accounts",
		strings.NewReader(`{"email":"alex@example.com","password":"hunter22","display_name":"Alex"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created signUpResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	require.NotNil(t, created.Tokens)
	assert.Equal(t, "Bearer", created.Tokens.TokenType)

	rec = postForm(t, handler, "/v1/token", url.Values{
		"grant_type": {"password"},
		"username":   {"alex@example.com"},
		"password":   {"hunter22"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var pair TokenPair
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pair))
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestHandleSignUpDuplicateEmail(t *testing.T) {
	provider, handler := newTestHandler(t)
	_, _, err := provider.SignUp(context.Background(), "alex@example.com", "hunter22", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/accounts",
		strings.NewReader(`{"email":"alex@example.com","password":"hunter22"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleTokenBadGrant(t *testing.T) {
	_, handler := newTestHandler(t)

	rec := postForm(t, handler, "/v1/token", url.Values{
		"grant_type": {"password"},
		"username":   {"alex@example.com"},
		"password":   {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postForm(t, handler, "/v1/token", url.Values{"grant_type": {"authorization_code"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRefreshGrantAndRevoke(t *testing.T) {
	provider, handler := newTestHandler(t)
	_, pair, err := provider.SignUp(context.Background(), "alex@example.com", "hunter22", "")
	require.NoError(t, err)

	rec := postForm(t, handler, "/v1/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {pair.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var fresh TokenPair
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fresh))

	rec = postForm(t, handler, "/v1/revoke", url.Values{"token": {fresh.RefreshToken}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(t, handler, "/v1/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {fresh.RefreshToken},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a revoked token must not grant")
}

func TestHandleUserInfoReadsDirectory(t *testing.T) {
	provider, handler := newTestHandler(t)
	ctx := context.Background()

	account, pair, err := provider.SignUp(ctx, "alex@example.com", "hunter22", "Alex")
	require.NoError(t, err)

	// Claim change after the token was minted: userinfo reads the
	// directory, so it shows up without a token rotation.
	require.NoError(t, provider.SetCustomClaims(ctx, account.ID, map[string]any{auth.AdminClaimKey: true}))

	req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info userInfoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, account.ID, info.Subject)
	assert.Equal(t, "Alex", info.Name)
	assert.Equal(t, true, info.Claims[auth.AdminClaimKey])
}

func TestHandleUserInfoRejectsBadToken(t *testing.T) {
	_, handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/userinfo", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleJWKS(t *testing.T) {
	provider, handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var keySet struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&keySet))
	require.Len(t, keySet.Keys, 1)
	assert.Equal(t, "RS256", keySet.Keys[0]["alg"])
	assert.Equal(t, provider.JWKS().Keys[0].KeyID, keySet.Keys[0]["kid"])
}
