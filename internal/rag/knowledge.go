package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// defaultEmbedBatch is the number of chunk texts sent per Embed call.
const defaultEmbedBatch = 32

// KnowledgeStore owns the single active similarity index for the process.
// It is either EMPTY (nothing indexed) or POPULATED. Every mutation holds the
// write lock; Query holds the read lock only for the index search.
type KnowledgeStore struct {
	// mu serialises mutations and guards populated/size.
	mu sync.RWMutex

	// embedder converts chunk text and questions to vectors.
	embedder Embedder

	// index is the storage backend.
	index Index

	// populated is false while the store is EMPTY.
	populated bool

	// size is the number of entries currently indexed.
	size int

	// batch is the number of texts per Embed call.
	batch int
}

// NewKnowledgeStore constructs an EMPTY KnowledgeStore over the given
// embedder and index backend. Call Load to restore persisted state.
func NewKnowledgeStore(embedder Embedder, index Index) (*KnowledgeStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	return &KnowledgeStore{
		embedder: embedder,
		index:    index,
		batch:    defaultEmbedBatch,
	}, nil
}

// Load restores the persisted index, if any. A missing index leaves the store
// EMPTY and is not an error.
func (k *KnowledgeStore) Load(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	n, err := k.index.Load(ctx)
	if err != nil {
		return fmt.Errorf("rag: load index: %w: %w", ErrStorage, err)
	}
	k.size = n
	k.populated = n > 0
	return nil
}

// Insert embeds chunks and adds them to the index, creating it when the store
// is EMPTY. The index is persisted before Insert returns. It returns the
// number of chunks added.
func (k *KnowledgeStore) Insert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("rag: insert: no chunks")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := k.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	entries := make([]Entry, len(chunks))
	for i := range chunks {
		entries[i] = Entry{Chunk: chunks[i], Vector: vectors[i]}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	total, err := k.index.Add(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("rag: add to index: %w: %w", ErrStorage, err)
	}
	k.size = total
	k.populated = true
	return len(entries), nil
}

// DeleteBySource removes every chunk whose source equals filename. When no
// chunk remains the persisted index is dropped and the store becomes EMPTY.
// Deleting a filename that was never indexed is a no-op.
func (k *KnowledgeStore) DeleteBySource(ctx context.Context, filename string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.populated {
		return nil
	}

	remaining, err := k.index.DeleteSource(ctx, filename)
	if err != nil {
		return fmt.Errorf("rag: delete %q: %w: %w", filename, ErrStorage, err)
	}
	if remaining == 0 {
		if err := k.index.Drop(ctx); err != nil {
			return fmt.Errorf("rag: drop empty index: %w: %w", ErrStorage, err)
		}
		k.populated = false
	}
	k.size = remaining
	return nil
}

// Query returns the k chunks most similar to question, best first.
// It fails with ErrEmptyStore when nothing is indexed.
func (k *KnowledgeStore) Query(ctx context.Context, question string, topK int) ([]Chunk, error) {
	if !k.Populated() {
		return nil, ErrEmptyStore
	}

	vectors, err := k.embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	// A reset may have run while the question was being embedded.
	if !k.populated {
		return nil, ErrEmptyStore
	}
	chunks, err := k.index.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w: %w", ErrStorage, err)
	}
	return chunks, nil
}

// Reset runs purge (if non-nil) and drops the index under the write lock,
// forcing the store EMPTY. Both steps are attempted even if one fails.
// Reset is idempotent.
func (k *KnowledgeStore) Reset(ctx context.Context, purge func() error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	if purge != nil {
		if err := purge(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := k.index.Drop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("rag: drop index: %w: %w", ErrStorage, err))
	}
	k.populated = false
	k.size = 0
	return errors.Join(errs...)
}

// Populated reports whether at least one chunk is indexed.
func (k *KnowledgeStore) Populated() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.populated
}

// Len returns the number of indexed chunks.
func (k *KnowledgeStore) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.size
}

// Close releases the index backend.
func (k *KnowledgeStore) Close() error {
	return k.index.Close()
}

// embed sends texts to the embedder in batches and checks the result shape.
func (k *KnowledgeStore) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += k.batch {
		end := min(start+k.batch, len(texts))
		vecs, err := k.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("rag: embed: %w: %w", ErrProvider, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("rag: embed: %w: expected %d vectors, got %d", ErrProvider, end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}
