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

// BunDocumentRepository implements DocumentRepository using Bun ORM
type BunDocumentRepository struct {
	db *bun.DB
}

// NewBunDocumentRepository creates a new Bun-based document repository
func NewBunDocumentRepository(db *bun.DB) *BunDocumentRepository {
	return &BunDocumentRepository{db: db}
}

// Get retrieves a document by (collection, doc_id).
// Returns (nil, nil) when the document does not exist.
func (r *BunDocumentRepository) Get(ctx context.Context, collection, docID string) (*models.Document, error) {
	doc := new(models.Document)
	err := r.db.NewSelect().
		Model(doc).
		Where("collection = ?", collection).
		Where("doc_id = ?", docID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document %s/%s: %w", collection, docID, err)
	}
	return doc, nil
}

// Upsert writes a document, replacing the fields column if a row already
// exists for the same (collection, doc_id). Per-document writes are atomic;
// concurrent upserts resolve last-write-wins.
func (r *BunDocumentRepository) Upsert(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(doc).
		On("CONFLICT (collection, doc_id) DO UPDATE").
		Set("fields = EXCLUDED.fields").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert document %s/%s: %w", doc.Collection, doc.DocID, err)
	}
	return nil
}
