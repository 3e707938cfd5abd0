package docstore

import (
	"context"

	"github.com/Nyenzo/tule-initiative/internal/db/models"
	"github.com/Nyenzo/tule-initiative/internal/repository"
)

// BunStore implements Store on top of the document repository.
//
// Merge is read-modify-write rather than a JSON-patch SQL expression so the
// same code path works on SQLite and PostgreSQL. The per-row upsert is
// atomic; a lost race between two merging writers of identical shape is
// benign (last write wins with the same content).
type BunStore struct {
	docs repository.DocumentRepository
}

// NewBunStore creates a document store backed by the given repository.
func NewBunStore(docs repository.DocumentRepository) *BunStore {
	return &BunStore{docs: docs}
}

// Get reads a single document. Returns (nil, nil) when absent.
func (s *BunStore) Get(ctx context.Context, collection, id string) (Fields, error) {
	doc, err := s.docs.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return Fields(doc.Fields), nil
}

// Upsert writes a document, merging with existing fields when merge is set.
func (s *BunStore) Upsert(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	next := make(models.ClaimMap, len(fields))

	if merge {
		existing, err := s.docs.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		if existing != nil {
			for k, v := range existing.Fields {
				next[k] = v
			}
		}
	}

	for k, v := range fields {
		next[k] = v
	}

	return s.docs.Upsert(ctx, &models.Document{
		Collection: collection,
		DocID:      id,
		Fields:     next,
	})
}
