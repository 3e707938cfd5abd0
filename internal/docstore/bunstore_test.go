package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyenzo/tule-initiative/internal/db/models"
)

// mockDocumentRepository keeps documents in a map keyed by collection/doc_id
type mockDocumentRepository struct {
	docs     map[string]*models.Document
	getErr   error
	upserts  int
	writeErr error
}

func newMockDocumentRepository() *mockDocumentRepository {
	return &mockDocumentRepository{docs: map[string]*models.Document{}}
}

func key(collection, docID string) string { return collection + "/" + docID }

func (m *mockDocumentRepository) Get(ctx context.Context, collection, docID string) (*models.Document, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	doc, ok := m.docs[key(collection, docID)]
	if !ok {
		return nil, nil
	}
	return doc, nil
}

func (m *mockDocumentRepository) Upsert(ctx context.Context, doc *models.Document) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.upserts++
	m.docs[key(doc.Collection, doc.DocID)] = doc
	return nil
}

func TestBunStore_GetAbsent(t *testing.T) {
	store := NewBunStore(newMockDocumentRepository())

	fields, err := store.Get(context.Background(), "users", "uid-1")
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestBunStore_MergePreservesExistingKeys(t *testing.T) {
	repo := newMockDocumentRepository()
	store := NewBunStore(repo)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "users", "uid-1", Fields{
		"email":   "alex@example.com",
		"isAdmin": true,
	}, true))

	// A later merge write without isAdmin must not drop the existing value.
	require.NoError(t, store.Upsert(ctx, "users", "uid-1", Fields{
		"email": "alex@example.com",
	}, true))

	fields, err := store.Get(ctx, "users", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, true, fields["isAdmin"])
	assert.Equal(t, "alex@example.com", fields["email"])
}

func TestBunStore_ReplaceDropsUnlistedKeys(t *testing.T) {
	repo := newMockDocumentRepository()
	store := NewBunStore(repo)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "users", "uid-1", Fields{"a": 1, "b": 2}, true))
	require.NoError(t, store.Upsert(ctx, "users", "uid-1", Fields{"a": 3}, false))

	fields, err := store.Get(ctx, "users", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, 3, fields["a"])
	_, hasB := fields["b"]
	assert.False(t, hasB)
}

func TestBunStore_MergeReadFailureAborts(t *testing.T) {
	repo := newMockDocumentRepository()
	repo.getErr = fmt.Errorf("permission denied")
	store := NewBunStore(repo)

	err := store.Upsert(context.Background(), "users", "uid-1", Fields{"a": 1}, true)
	require.Error(t, err)
	assert.Zero(t, repo.upserts)
}
