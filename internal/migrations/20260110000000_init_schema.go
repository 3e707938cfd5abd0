package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/Nyenzo/tule-initiative/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260110000000, down_20260110000000)
}

// up_20260110000000 initializes the full database schema
func up_20260110000000(ctx context.Context, db *bun.DB) error {
	// 1. Create accounts table
	fmt.Print(" [up] creating accounts table...")
	_, err := db.NewCreateTable().
		Model((*models.Account)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}
	fmt.Println(" OK")

	// 2. Create refresh_tokens table
	fmt.Print(" [up] creating refresh_tokens table...")
	_, err = db.NewCreateTable().
		Model((*models.RefreshToken)(nil)).
		IfNotExists().
		ForeignKey(`("account_id") REFERENCES "accounts" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create refresh_tokens table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_account_id ON refresh_tokens(account_id)`)
	if err != nil {
		return fmt.Errorf("failed to create index on refresh_tokens: %w", err)
	}
	fmt.Println(" OK")

	// 3. Create documents table
	fmt.Print(" [up] creating documents table...")
	_, err = db.NewCreateTable().
		Model((*models.Document)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	// One document per (collection, doc_id); merge-upserts rely on this.
	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_collection_doc_id ON documents(collection, doc_id)`)
	if err != nil {
		return fmt.Errorf("failed to create unique index on documents: %w", err)
	}

	if IsPostgreSQL(db) {
		// Use GIN index for JSONB field lookups
		_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_fields_gin ON documents USING gin (fields jsonb_path_ops)`)
		if err != nil {
			return fmt.Errorf("failed to create GIN index on documents: %w", err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20260110000000 drops all tables created by the up migration
func down_20260110000000(ctx context.Context, db *bun.DB) error {
	for _, table := range []string{"documents", "refresh_tokens", "accounts"} {
		fmt.Printf(" [down] dropping %s table...", table)
		if _, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}
	return nil
}
