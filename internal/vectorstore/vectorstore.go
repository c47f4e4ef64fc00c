// Package vectorstore provides interfaces and implementations for vector similarity search.
package vectorstore

import (
	"context"
)

// Chunk represents a paper chunk with its embedding, ready for indexing.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Vector     []float32
	Metadata   map[string]string
}

// SearchResult represents a single scored hit from the vector store.
type SearchResult struct {
	ID         string
	DocumentID string
	Content    string
	Score      float32
	Metadata   map[string]string
}

// Filter restricts a search to points whose payload satisfies every
// condition: Match entries require an exact value, Gte entries a minimum
// numeric bound. Field names refer to metadata payload keys.
type Filter struct {
	Match map[string]string
	Gte   map[string]float64
}

// IsZero reports whether the filter carries no conditions.
func (f *Filter) IsZero() bool {
	return f == nil || (len(f.Match) == 0 && len(f.Gte) == 0)
}

// VectorStore defines the vector index operations the retrieval core consumes.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or updates chunks. Large inputs are written in
	// fixed-size batches to bound request payload size.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search performs dense similarity search. A nil filter matches
	// everything; scoreThreshold <= 0 disables the cutoff.
	Search(ctx context.Context, vector []float32, limit int, filter *Filter, scoreThreshold float32) ([]SearchResult, error)

	// Delete removes all chunks belonging to a document.
	Delete(ctx context.Context, documentID string) error
}
