package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Account represents an identity-provider user record.
// The CustomClaims column holds verified authorization attributes (e.g.
// isAdmin) that are embedded into every token minted for the account.
// Custom claims are written only through the directory surface, never by the
// account owner.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID            string     `bun:"id,pk,type:uuid"`
	Email         string     `bun:"email,notnull,unique"`
	DisplayName   string     `bun:"display_name"`
	PasswordHash  string     `bun:"password_hash,notnull"` // bcrypt hash
	EmailVerified bool       `bun:"email_verified,notnull,default:false"`
	CustomClaims  ClaimMap   `bun:"custom_claims,type:jsonb,notnull,default:'{}'"`
	Disabled      bool       `bun:"disabled,notnull,default:false"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt   *time.Time `bun:"last_login_at"`
}

// IsAdmin reports whether the account's custom claims carry the admin flag.
func (a *Account) IsAdmin() bool {
	if a == nil || a.CustomClaims == nil {
		return false
	}
	admin, _ := a.CustomClaims["isAdmin"].(bool)
	return admin
}

// ClaimMap stores custom claims as a JSON object column.
type ClaimMap map[string]any

// Scan implements sql.Scanner for reading from database
func (cm *ClaimMap) Scan(value any) error {
	if value == nil {
		*cm = make(ClaimMap)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan ClaimMap: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(bytes, cm)
}

// Value implements driver.Valuer for writing to database
func (cm ClaimMap) Value() (driver.Value, error) {
	if cm == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(cm)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// RefreshToken is a hash-addressed, revocable refresh credential.
// The plaintext token is never persisted; lookup is by SHA-256 hash.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	ID         string     `bun:"id,pk,type:uuid"`
	AccountID  string     `bun:"account_id,notnull,type:uuid"` // FK to accounts(id)
	TokenHash  string     `bun:"token_hash,notnull,unique"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull"`
	Revoked    bool       `bun:"revoked,notnull,default:false"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt *time.Time `bun:"last_used_at"`
}

// Document is a generic document-store row: one JSON document addressed by
// (collection, doc_id). Profile records live in the "users" collection keyed
// by the account ID.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID         string    `bun:"id,pk,type:uuid"`
	Collection string    `bun:"collection,notnull"`
	DocID      string    `bun:"doc_id,notnull"`
	Fields     ClaimMap  `bun:"fields,type:jsonb,notnull,default:'{}'"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
