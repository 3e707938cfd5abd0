// Package docstore exposes the document-store surface consumed by the
// session manager: point reads and merge-upserts of JSON documents addressed
// by (collection, id).
package docstore

import "context"

// Fields is the JSON object held by a single document.
type Fields map[string]any

// Store is the minimal document-store contract.
//
// Get returns (nil, nil) when no document exists: absence is an expected
// outcome, distinct from a failed read. Callers that need to create a
// document lazily must only do so on confirmed absence.
type Store interface {
	// Get reads a single document. Returns (nil, nil) when absent.
	Get(ctx context.Context, collection, id string) (Fields, error)

	// Upsert writes a document. With merge set, incoming fields are laid
	// over any existing fields (incoming keys win, other keys survive);
	// without merge, the document is replaced wholesale.
	Upsert(ctx context.Context, collection, id string, fields Fields, merge bool) error
}
