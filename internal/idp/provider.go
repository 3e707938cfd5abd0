// Package idp implements the embedded identity provider: account records
// with password credentials, RS256 access tokens carrying custom claims,
// revocable refresh tokens, directory administration, and auth-state change
// notifications for in-process subscribers.
package idp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/Nyenzo/tule-initiative/internal/auth"
	"github.com/Nyenzo/tule-initiative/internal/db/models"
	"github.com/Nyenzo/tule-initiative/internal/repository"
)

const (
	tokenCacheSize    = 4096
	identityCacheSize = 1024
	minPasswordLength = 6
)

// TokenPair is the credential set issued on sign-in, sign-up, and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Options bundles the collaborators required to construct a Provider.
type Options struct {
	Accounts      repository.AccountRepository
	RefreshTokens repository.RefreshTokenRepository
	Signer        *auth.Signer
	JWKS          jose.JSONWebKeySet
	RefreshTTL    time.Duration
	BcryptCost    int
}

// Provider is the identity provider. All methods are safe for concurrent
// use; the only shared mutable state is the two LRU caches and the hub,
// each internally synchronized.
type Provider struct {
	accounts   repository.AccountRepository
	refresh    repository.RefreshTokenRepository
	signer     *auth.Signer
	jwks       jose.JSONWebKeySet
	refreshTTL time.Duration
	bcryptCost int

	// tokenCache memoizes signature verification per raw access token.
	// Entries self-expire with the token's exp claim.
	tokenCache *lru.Cache[string, auth.VerifiedClaims]

	// identityCache memoizes directory-derived claims per account ID.
	// A forced refresh always bypasses and replaces the cached entry.
	identityCache *lru.Cache[string, auth.VerifiedClaims]

	hub *Hub
}

// NewProvider constructs a Provider from its collaborators.
func NewProvider(opts Options) (*Provider, error) {
	if opts.Accounts == nil || opts.RefreshTokens == nil || opts.Signer == nil {
		return nil, errors.New("idp: accounts, refresh tokens, and signer are required")
	}
	if opts.RefreshTTL <= 0 {
		return nil, errors.New("idp: refresh TTL must be positive")
	}

	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	tokenCache, err := lru.New[string, auth.VerifiedClaims](tokenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("idp: create token cache: %w", err)
	}
	identityCache, err := lru.New[string, auth.VerifiedClaims](identityCacheSize)
	if err != nil {
		return nil, fmt.Errorf("idp: create identity cache: %w", err)
	}

	return &Provider{
		accounts:      opts.Accounts,
		refresh:       opts.RefreshTokens,
		signer:        opts.Signer,
		jwks:          opts.JWKS,
		refreshTTL:    opts.RefreshTTL,
		bcryptCost:    cost,
		tokenCache:    tokenCache,
		identityCache: identityCache,
		hub:           NewHub(),
	}, nil
}

// Subscribe registers for auth-state change notifications.
func (p *Provider) Subscribe() (<-chan StateChange, func()) {
	return p.hub.Subscribe()
}

// Close shuts down the notification hub.
func (p *Provider) Close() {
	p.hub.Close()
}

// JWKS returns the published key set for token verification.
func (p *Provider) JWKS() jose.JSONWebKeySet { return p.jwks }

// SignUp registers a new account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (*models.Account, *TokenPair, error) {
	if email == "" {
		return nil, nil, fmt.Errorf("%w: email is required", ErrInvalidCredentials)
	}
	if len(password) < minPasswordLength {
		return nil, nil, ErrWeakPassword
	}

	if _, err := p.accounts.GetByEmail(ctx, email); err == nil {
		return nil, nil, ErrEmailInUse
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, nil, fmt.Errorf("check existing account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CustomClaims: models.ClaimMap{},
	}
	if err := p.accounts.Create(ctx, account); err != nil {
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	pair, err := p.issueTokens(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	p.hub.Emit(StateChange{Identity: identityOf(account)})
	return account, pair, nil
}

// SignInWithPassword authenticates by email and password.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*TokenPair, error) {
	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up account: %w", err)
	}

	if account.Disabled {
		return nil, ErrAccountDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := p.accounts.UpdateLastLogin(ctx, account.ID); err != nil {
		// Non-fatal bookkeeping.
		log.Printf("WARNING: failed to update last login for %s: %v", account.ID, err)
	}

	pair, err := p.issueTokens(ctx, account)
	if err != nil {
		return nil, err
	}

	p.hub.Emit(StateChange{Identity: identityOf(account)})
	return pair, nil
}

// Refresh exchanges a refresh token for a fresh token pair. The old token is
// revoked (rotation) and the access token is minted from the account record
// as it exists now, so custom-claim changes become visible here.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	stored, err := p.refresh.GetByTokenHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrTokenRevoked
		}
		return nil, fmt.Errorf("look up refresh token: %w", err)
	}

	if stored.Revoked {
		return nil, ErrTokenRevoked
	}
	if stored.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	account, err := p.accounts.GetByID(ctx, stored.AccountID)
	if err != nil {
		return nil, fmt.Errorf("look up account for refresh: %w", err)
	}
	if account.Disabled {
		return nil, ErrAccountDisabled
	}

	if err := p.refresh.Revoke(ctx, stored.ID); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return p.issueTokens(ctx, account)
}

// SignOut revokes every refresh token held by the account and notifies
// subscribers. Access tokens already issued remain valid until expiry;
// session teardown is driven by the emitted state change.
func (p *Provider) SignOut(ctx context.Context, accountID string) error {
	if err := p.refresh.RevokeByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	p.identityCache.Remove(accountID)
	p.hub.Emit(StateChange{Identity: nil})
	return nil
}

// RevokeRefreshToken revokes a single refresh token by its plaintext value.
func (p *Provider) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	stored, err := p.refresh.GetByTokenHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			// Revoking an unknown token is a success per RFC 7009.
			return nil
		}
		return fmt.Errorf("look up refresh token: %w", err)
	}
	return p.refresh.Revoke(ctx, stored.ID)
}

// VerifyAccessToken checks a raw access token and returns its verified
// claims. Verification results are memoized per token; entries are evicted
// once the token's expiry passes.
func (p *Provider) VerifyAccessToken(raw string) (auth.VerifiedClaims, error) {
	if cached, ok := p.tokenCache.Get(raw); ok {
		if !cached.Expired(time.Now()) {
			return cached, nil
		}
		p.tokenCache.Remove(raw)
	}

	claims, err := p.signer.Verify(raw)
	if err != nil {
		return auth.VerifiedClaims{}, err
	}

	p.tokenCache.Add(raw, claims)
	return claims, nil
}

// RefreshClaims resolves the account's current verified claims.
//
// With force set, the directory record is always re-read and the cached
// entry replaced; otherwise an unexpired cached entry is served. Callers
// that must observe server-side claim changes (session establishment) pass
// force=true.
func (p *Provider) RefreshClaims(ctx context.Context, accountID string, force bool) (auth.VerifiedClaims, error) {
	if !force {
		if cached, ok := p.identityCache.Get(accountID); ok && !cached.Expired(time.Now()) {
			return cached, nil
		}
	}

	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return auth.VerifiedClaims{}, fmt.Errorf("refresh claims: %w", err)
	}
	if account.Disabled {
		return auth.VerifiedClaims{}, ErrAccountDisabled
	}

	claims := auth.VerifiedClaims{
		Subject:       account.ID,
		Email:         account.Email,
		Name:          account.DisplayName,
		EmailVerified: account.EmailVerified,
		Admin:         account.IsAdmin(),
		ExpiresAt:     time.Now().Add(p.signer.TTL()),
	}
	p.identityCache.Add(accountID, claims)
	return claims, nil
}

// GetUser returns the directory record for an account ID.
func (p *Provider) GetUser(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, accountID)
		}
		return nil, err
	}
	return account, nil
}

// FindUserByEmail resolves an account by email.
func (p *Provider) FindUserByEmail(ctx context.Context, email string) (*models.Account, error) {
	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
		}
		return nil, err
	}
	return account, nil
}

// SetCustomClaims merges the patch into the account's existing custom
// claims and persists the result. Keys absent from the patch survive; the
// write is a merge, never a wholesale replacement. The identity cache entry
// is dropped so the next forced refresh observes the change.
func (p *Provider) SetCustomClaims(ctx context.Context, accountID string, patch map[string]any) error {
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, accountID)
		}
		return err
	}

	merged := make(models.ClaimMap, len(account.CustomClaims)+len(patch))
	for k, v := range account.CustomClaims {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	if err := p.accounts.UpdateCustomClaims(ctx, accountID, merged); err != nil {
		return fmt.Errorf("set custom claims: %w", err)
	}

	p.identityCache.Remove(accountID)
	return nil
}

func (p *Provider) issueTokens(ctx context.Context, account *models.Account) (*TokenPair, error) {
	now := time.Now()

	access, err := p.signer.Mint(account, now)
	if err != nil {
		return nil, err
	}

	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	if err := p.refresh.Create(ctx, &models.RefreshToken{
		AccountID: account.ID,
		TokenHash: auth.HashToken(refresh),
		ExpiresAt: now.Add(p.refreshTTL),
	}); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(p.signer.TTL().Seconds()),
		RefreshToken: refresh,
	}, nil
}

func identityOf(account *models.Account) *Identity {
	return &Identity{
		ID:            account.ID,
		Email:         account.Email,
		DisplayName:   account.DisplayName,
		EmailVerified: account.EmailVerified,
	}
}
