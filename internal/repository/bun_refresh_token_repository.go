package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Nyenzo/tule-initiative/internal/db/models"
)

// BunRefreshTokenRepository implements RefreshTokenRepository using Bun ORM
type BunRefreshTokenRepository struct {
	db *bun.DB
}

// NewBunRefreshTokenRepository creates a new Bun-based refresh token repository
func NewBunRefreshTokenRepository(db *bun.DB) *BunRefreshTokenRepository {
	return &BunRefreshTokenRepository{db: db}
}

// Create inserts a new refresh token into the database
func (r *BunRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	token.CreatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a refresh token by its SHA-256 hash
func (r *BunRefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	token := new(models.RefreshToken)
	err := r.db.NewSelect().
		Model(token).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("get refresh token by hash: %w", err)
	}
	return token, nil
}

// UpdateLastUsed stamps the token's last use time
func (r *BunRefreshTokenRepository) UpdateLastUsed(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*models.RefreshToken)(nil)).
		Set("last_used_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update refresh token last used: %w", err)
	}
	return nil
}

// Revoke marks a single refresh token as revoked
func (r *BunRefreshTokenRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.RefreshToken)(nil)).
		Set("revoked = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeByAccountID revokes all refresh tokens held by an account (sign-out)
func (r *BunRefreshTokenRepository) RevokeByAccountID(ctx context.Context, accountID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.RefreshToken)(nil)).
		Set("revoked = ?", true).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens for account: %w", err)
	}
	return nil
}

// DeleteExpired removes refresh tokens past their expiry
func (r *BunRefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*models.RefreshToken)(nil)).
		Where("expires_at < ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return nil
}
