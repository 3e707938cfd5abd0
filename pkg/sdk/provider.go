package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/docstore"
	"github.com/Nyenzo/tule-initiative/internal/idp"
	"github.com/Nyenzo/tule-initiative/internal/session"
)

// RemoteProvider adapts a Client into the identity-provider and
// document-store surfaces the session manager consumes, so a full live
// session can run against a remote server. Sign-ins and sign-outs made
// through this provider flow to session subscribers as ordered state
// changes.
type RemoteProvider struct {
	client *Client
	hub    *idp.Hub

	mu   sync.Mutex
	hint ClientHint
}

// NewRemoteProvider wraps a Client.
func NewRemoteProvider(client *Client) *RemoteProvider {
	return &RemoteProvider{client: client, hub: idp.NewHub()}
}

// NewSession builds a session manager running over this provider.
func (p *RemoteProvider) NewSession() *session.Manager {
	return session.NewManager(p, p)
}

// Close shuts down the state-change hub.
func (p *RemoteProvider) Close() {
	p.hub.Close()
}

// Subscribe registers for auth-state change notifications.
func (p *RemoteProvider) Subscribe() (<-chan idp.StateChange, func()) {
	return p.hub.Subscribe()
}

// Login signs in and announces the new identity to session subscribers.
func (p *RemoteProvider) Login(ctx context.Context, email, password string) error {
	if _, err := p.client.Login(ctx, email, password); err != nil {
		return err
	}

	info, err := p.userInfo(ctx)
	if err != nil {
		return err
	}

	admin, _ := info.Claims[auth.AdminClaimKey].(bool)
	p.setHint(ClientHint{IsAdminHint: admin})

	p.hub.Emit(idp.StateChange{Identity: &idp.Identity{
		ID:            info.Subject,
		Email:         info.Email,
		DisplayName:   info.Name,
		EmailVerified: info.EmailVerified,
	}})
	return nil
}

// Hint returns the last client-side guess about the signed-in user, for
// optimistic UI while the session manager's forced refresh is in flight.
func (p *RemoteProvider) Hint() ClientHint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hint
}

func (p *RemoteProvider) setHint(hint ClientHint) {
	p.mu.Lock()
	p.hint = hint
	p.mu.Unlock()
}

// RefreshClaims resolves the signed-in user's current verified claims.
// With force set, the refresh grant is exercised first so the server
// re-reads its records and rotates the credential before claims are
// fetched; either way the claims come from the server's userinfo endpoint,
// never from anything cached client-side.
func (p *RemoteProvider) RefreshClaims(ctx context.Context, accountID string, force bool) (auth.VerifiedClaims, error) {
	if force {
		if _, err := p.client.Refresh(ctx); err != nil {
			return auth.VerifiedClaims{}, fmt.Errorf("force refresh: %w", err)
		}
	}

	info, err := p.userInfo(ctx)
	if err != nil {
		return auth.VerifiedClaims{}, err
	}
	if info.Subject != accountID {
		return auth.VerifiedClaims{}, fmt.Errorf("credentials belong to %s, not %s", info.Subject, accountID)
	}

	admin, _ := info.Claims[auth.AdminClaimKey].(bool)
	return auth.VerifiedClaims{
		Subject:       info.Subject,
		Email:         info.Email,
		Name:          info.Name,
		EmailVerified: info.EmailVerified,
		Admin:         admin,
		ExpiresAt:     time.Now().Add(time.Minute),
	}, nil
}

// SignOut revokes the credential and announces the signed-out state.
func (p *RemoteProvider) SignOut(ctx context.Context, _ string) error {
	if err := p.client.Logout(ctx); err != nil {
		return err
	}
	p.setHint(ClientHint{})
	p.hub.Emit(idp.StateChange{Identity: nil})
	return nil
}

// Get reads a document through the server. Absence maps to (nil, nil),
// matching the store contract.
func (p *RemoteProvider) Get(ctx context.Context, collection, id string) (docstore.Fields, error) {
	fields, err := p.client.GetDocument(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, nil
	}
	return docstore.Fields(fields), nil
}

// Upsert writes a document through the server.
func (p *RemoteProvider) Upsert(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	return p.client.PutDocument(ctx, collection, id, fields, merge)
}

type userInfo struct {
	Subject       string         `json:"sub"`
	Email         string         `json:"email"`
	Name          string         `json:"name"`
	EmailVerified bool           `json:"email_verified"`
	Claims        map[string]any `json:"claims"`
}

func (p *RemoteProvider) userInfo(ctx context.Context) (*userInfo, error) {
	resp, err := p.client.do(ctx, http.MethodGet, "/v1/userinfo", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo failed: unexpected status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &info, nil
}
