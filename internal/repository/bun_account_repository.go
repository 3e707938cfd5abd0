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

// BunAccountRepository implements AccountRepository using Bun ORM
type BunAccountRepository struct {
	db *bun.DB
}

// NewBunAccountRepository creates a new Bun-based account repository
func NewBunAccountRepository(db *bun.DB) *BunAccountRepository {
	return &BunAccountRepository{db: db}
}

// Create inserts a new account into the database
func (r *BunAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.CustomClaims == nil {
		account.CustomClaims = make(models.ClaimMap)
	}

	_, err := r.db.NewInsert().
		Model(account).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by its ID
func (r *BunAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("get account by ID: %w", err)
	}
	return account, nil
}

// GetByEmail retrieves an account by its email
func (r *BunAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, email)
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return account, nil
}

// UpdateCustomClaims replaces the account's custom-claims column.
// Merging with existing claims is the caller's responsibility; the directory
// layer reads, merges, and writes back.
func (r *BunAccountRepository) UpdateCustomClaims(ctx context.Context, id string, claims models.ClaimMap) error {
	res, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("custom_claims = ?", claims).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update custom claims: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return nil
}

// UpdateLastLogin stamps the account's last successful sign-in time
func (r *BunAccountRepository) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("last_login_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
