package repository

import (
	"context"
	"errors"

	"github.com/Nyenzo/tule-initiative/internal/db/models"
)

var (
	// ErrAccountNotFound is returned when no account matches the lookup key.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTokenNotFound is returned when no refresh token matches the hash.
	ErrTokenNotFound = errors.New("refresh token not found")
)

// AccountRepository exposes persistence operations for identity-provider accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateCustomClaims(ctx context.Context, id string, claims models.ClaimMap) error
	UpdateLastLogin(ctx context.Context, id string) error
}

// RefreshTokenRepository exposes persistence operations for refresh tokens.
//
// Tokens are addressed by SHA-256 hash; the plaintext never reaches storage.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	UpdateLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	RevokeByAccountID(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context) error
}

// DocumentRepository exposes persistence operations for document-store rows.
//
// Get returns (nil, nil) when the document does not exist: absence is an
// expected outcome for callers, not an error.
type DocumentRepository interface {
	Get(ctx context.Context, collection, docID string) (*models.Document, error)
	Upsert(ctx context.Context, doc *models.Document) error
}
