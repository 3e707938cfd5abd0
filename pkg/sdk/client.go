// Package sdk is the Go client for the Tule Initiative API: credential
// acquisition, the role-administration callable, and remote access to
// profile documents. It also provides the pieces needed to run a live
// session against a remote server.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/Nyenzo/tule-initiative/pkg/api"
)

// Client is a connection to one API server. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	creds *Credentials
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

// New builds a Client for the given server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server base URL the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetCredentials installs the credentials used for authenticated calls.
func (c *Client) SetCredentials(creds *Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

// Credentials returns the currently installed credentials, or nil.
func (c *Client) Credentials() *Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// Login signs in with email and password and installs the resulting
// credentials on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*Credentials, error) {
	creds, err := LoginWithPassword(ctx, c.baseURL, email, password)
	if err != nil {
		return nil, err
	}
	c.SetCredentials(creds)
	return creds, nil
}

// Refresh rotates the client's refresh token and installs the fresh
// credentials.
func (c *Client) Refresh(ctx context.Context) (*Credentials, error) {
	current := c.Credentials()
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}
	creds, err := RefreshCredentials(ctx, c.baseURL, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	c.SetCredentials(creds)
	return creds, nil
}

// Logout revokes the refresh token and clears the client's credentials.
func (c *Client) Logout(ctx context.Context) error {
	current := c.Credentials()
	if current == nil {
		return nil
	}
	if current.RefreshToken != "" {
		if err := Revoke(ctx, c.baseURL, current.RefreshToken); err != nil {
			return err
		}
	}
	c.SetCredentials(nil)
	return nil
}

// GrantAdminRole promotes the user with the given email to admin. The
// caller must hold admin privilege; failures come back as *api.CallableError
// with the server's canonical code.
func (c *Client) GrantAdminRole(ctx context.Context, email string) (string, error) {
	body, err := json.Marshal(api.GrantAdminRequest{Email: email})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/admin/grant-admin", bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", callableErrorFrom(resp)
	}

	var out api.GrantAdminResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode grant-admin response: %w", err)
	}
	return out.Message, nil
}

// WhoAmI reports the caller as the server's directory currently records
// them, including the live admin flag.
func (c *Client) WhoAmI(ctx context.Context) (*api.WhoAmIResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/whoami", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, callableErrorFrom(resp)
	}

	var out api.WhoAmIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode whoami response: %w", err)
	}
	return &out, nil
}

// GetDocument reads one document. Returns (nil, nil) when the document
// does not exist.
func (c *Client) GetDocument(ctx context.Context, collection, docID string) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/documents/%s/%s", collection, docID), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var fields map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		return fields, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, callableErrorFrom(resp)
	}
}

// PutDocument writes one document. With merge set, incoming fields are
// laid over the existing document server-side.
func (c *Client) PutDocument(ctx context.Context, collection, docID string, fields map[string]any, merge bool) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/v1/documents/%s/%s", collection, docID)
	if merge {
		path += "?merge=true"
	}

	resp, err := c.do(ctx, http.MethodPut, path, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return callableErrorFrom(resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if creds := c.Credentials(); creds != nil {
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// callableErrorFrom decodes the server's structured error envelope. An
// undecodable body degrades to an INTERNAL error with the raw status.
func callableErrorFrom(resp *http.Response) error {
	var body api.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Status == "" {
		return &api.CallableError{
			Code:    api.CodeInternal,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}
	return &api.CallableError{Code: body.Error.Status, Message: body.Error.Message}
}
