// Package rag defines the retrieval side of docqa: the chunk model, the
// embedding and index contracts, and the KnowledgeStore that owns the single
// active similarity index for the process.
// Concrete index backends (flat SQLite-persisted, Qdrant) satisfy Index so the
// answer and HTTP layers never depend on a specific backend.
package rag

import (
	"context"
)

// UnknownSource is reported for chunks that carry no source filename.
const UnknownSource = "unknown"

// Chunk is a contiguous slice of a document's text plus the metadata needed
// to attribute it back to the uploaded file it came from.
type Chunk struct {
	// ID is a deterministic identifier derived from source, page, and index.
	ID string

	// Content is the raw text of the chunk.
	Content string

	// Source is the uploaded filename the chunk was produced from.
	Source string

	// Metadata holds loader-specific attributes (page, chunk_index, format).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// SourceName returns the chunk's source filename, or UnknownSource when the
// chunk carries none.
func (c Chunk) SourceName() string {
	if c.Source == "" {
		return UnknownSource
	}
	return c.Source
}

// Entry pairs a chunk with its embedding vector. One entry per chunk.
type Entry struct {
	// Chunk is the stored chunk.
	Chunk Chunk
	// Vector is the embedding of Chunk.Content.
	Vector []float32
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the storage backend behind a KnowledgeStore. Mutating calls are
// serialised by the KnowledgeStore; Search may be called concurrently with
// other Search calls.
type Index interface {
	// Load restores previously persisted entries and returns how many were
	// found. A missing or empty persisted index is not an error.
	Load(ctx context.Context) (int, error)

	// Add stores entries, persists the result before returning, and returns
	// the number of entries now held.
	Add(ctx context.Context, entries []Entry) (int, error)

	// Search returns up to topK chunks nearest to vector, best first.
	Search(ctx context.Context, vector []float32, topK int) ([]Chunk, error)

	// DeleteSource removes every entry whose chunk Source equals source and
	// returns the number of entries that remain.
	DeleteSource(ctx context.Context, source string) (int, error)

	// Drop discards all entries, in memory and in persisted storage.
	Drop(ctx context.Context) error

	// Close releases any resources held by the index.
	Close() error
}

// Retriever is the high-level interface used by the answer service to fetch
// relevant context for a question. *KnowledgeStore satisfies it.
type Retriever interface {
	// Query returns the k chunks most similar to question.
	Query(ctx context.Context, question string, k int) ([]Chunk, error)
}
