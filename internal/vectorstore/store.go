// Package vectorstore persists chunk embeddings and serves nearest-neighbor
// queries.
package vectorstore

import (
	"context"
	"errors"

	"github.com/runeset/semidx/internal/chunk"
)

var (
	// ErrModelMismatch indicates a query was embedded with a different model
	// than the stored vectors. This is a configuration invariant violation
	// and is surfaced rather than silently tolerated.
	ErrModelMismatch = errors.New("embedding model does not match vector store")
)

// Hit is one ranked similarity result.
type Hit struct {
	ChunkID    string
	DocumentID string
	Score      float32
	Text       string
	Metadata   map[string]string
}

// Stats summarizes store contents.
type Stats struct {
	DocumentCount int
	ChunkCount    int
	EmbeddedCount int
}

// Store is the persistence and nearest-neighbor search surface for chunk
// embeddings.
type Store interface {
	// ReplaceDocument atomically swaps the chunk set of a document: prior
	// chunks are deleted and the given chunks inserted as one operation with
	// respect to concurrent readers. vectors[i] belongs to chunks[i].
	ReplaceDocument(ctx context.Context, docID string, chunks []chunk.Chunk, vectors [][]float32, contentHash string) error

	// DeleteByDocument removes all chunks of a document. Removing an absent
	// document is a no-op. Returns the number of chunks removed.
	DeleteByDocument(ctx context.Context, docID string) (int, error)

	// Search returns up to topK hits ordered by descending similarity.
	// model is the identifier of the backend that embedded the query.
	Search(ctx context.Context, vector []float32, topK int, model string) ([]Hit, error)

	// ContentHash returns the recorded content hash for a document, if any.
	ContentHash(docID string) (string, bool)

	// Stats reports document and chunk counts.
	Stats(ctx context.Context) (Stats, error)

	// Close flushes and releases the store.
	Close() error
}
