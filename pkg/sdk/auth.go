package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// oauthConfig builds the OAuth2 configuration for the server's token
// endpoint. The identity provider is its own authorization server; there
// is no client secret, callers are public clients.
func oauthConfig(baseURL string) *oauth2.Config {
	return &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(baseURL, "/") + "/v1/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func credentialsFromToken(token *oauth2.Token) *Credentials {
	return &Credentials{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
		RefreshToken: token.RefreshToken,
	}
}

// LoginWithPassword exchanges an email and password for credentials via
// the OAuth2 resource-owner password grant.
func LoginWithPassword(ctx context.Context, baseURL, email, password string) (*Credentials, error) {
	token, err := oauthConfig(baseURL).PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("password grant failed: %w", err)
	}
	return credentialsFromToken(token), nil
}

// RefreshCredentials exchanges a refresh token for fresh credentials. The
// server rotates refresh tokens, so the returned credentials carry a new
// one and the old one is dead.
func RefreshCredentials(ctx context.Context, baseURL, refreshToken string) (*Credentials, error) {
	source := oauthConfig(baseURL).TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh grant failed: %w", err)
	}
	return credentialsFromToken(token), nil
}

// SignUpResult describes a freshly registered account.
type SignUpResult struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// SignUp registers a new account and returns its identity plus an initial
// credential set.
func SignUp(ctx context.Context, baseURL, email, password, displayName string) (*SignUpResult, *Credentials, error) {
	body, err := json.Marshal(map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/v1/accounts", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := defaultHTTPClient().Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("sign up request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return nil, nil, fmt.Errorf("sign up failed: %s: %s", apiErr.Error, apiErr.ErrorDescription)
		}
		return nil, nil, fmt.Errorf("sign up failed: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		SignUpResult
		Tokens struct {
			AccessToken  string `json:"access_token"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int64  `json:"expires_in"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decode sign up response: %w", err)
	}

	creds := &Credentials{
		AccessToken:  payload.Tokens.AccessToken,
		TokenType:    payload.Tokens.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(payload.Tokens.ExpiresIn) * time.Second),
		RefreshToken: payload.Tokens.RefreshToken,
	}
	return &payload.SignUpResult, creds, nil
}

// Revoke invalidates a refresh token server-side.
func Revoke(ctx context.Context, baseURL, refreshToken string) error {
	form := url.Values{"token": {refreshToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/v1/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := defaultHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke failed: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
