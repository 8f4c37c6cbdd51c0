package rag

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// Snapshotter persists the complete entry set of a FlatIndex.
// *store.SnapshotStore satisfies it.
type Snapshotter interface {
	// Save replaces the persisted snapshot with entries.
	Save(ctx context.Context, entries []Entry) error
	// Load returns the persisted entries. A missing snapshot yields no entries.
	Load(ctx context.Context) ([]Entry, error)
	// Remove deletes the persisted snapshot. Removing a missing snapshot is not an error.
	Remove(ctx context.Context) error
}

// FlatIndex is an in-memory, brute-force cosine index whose full contents are
// rewritten to a Snapshotter on every change. Mutations are serialised by the
// owning KnowledgeStore.
type FlatIndex struct {
	// entries is the live entry set, in insertion order.
	entries []Entry

	// snap persists entries. Nil keeps the index memory-only.
	snap Snapshotter
}

// NewFlatIndex constructs an empty FlatIndex persisted through snap.
// A nil snap keeps the index in memory only.
func NewFlatIndex(snap Snapshotter) *FlatIndex {
	return &FlatIndex{snap: snap}
}

// Load replaces the in-memory entries with the persisted snapshot.
func (f *FlatIndex) Load(ctx context.Context) (int, error) {
	if f.snap == nil {
		return len(f.entries), nil
	}
	entries, err := f.snap.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("flat index: load snapshot: %w", err)
	}
	f.entries = entries
	return len(entries), nil
}

// Add appends entries, persists the new set, and only then swaps it in.
func (f *FlatIndex) Add(ctx context.Context, entries []Entry) (int, error) {
	if dim := f.dimension(); dim > 0 {
		for _, e := range entries {
			if len(e.Vector) != dim {
				return 0, fmt.Errorf("flat index: vector dimension %d does not match index dimension %d", len(e.Vector), dim)
			}
		}
	}

	next := make([]Entry, 0, len(f.entries)+len(entries))
	next = append(next, f.entries...)
	next = append(next, entries...)

	if err := f.persist(ctx, next); err != nil {
		return 0, err
	}
	f.entries = next
	return len(next), nil
}

// Search scores every entry by cosine similarity to vector and returns the
// topK best, highest score first.
func (f *FlatIndex) Search(_ context.Context, vector []float32, topK int) ([]Chunk, error) {
	if topK <= 0 || len(f.entries) == 0 {
		return nil, nil
	}
	if dim := f.dimension(); len(vector) != dim {
		return nil, fmt.Errorf("flat index: query dimension %d does not match index dimension %d", len(vector), dim)
	}

	type scored struct {
		idx   int
		score float32
	}
	scores := make([]scored, len(f.entries))
	for i, e := range f.entries {
		scores[i] = scored{idx: i, score: cosine(vector, e.Vector)}
	}
	slices.SortStableFunc(scores, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	topK = min(topK, len(scores))
	out := make([]Chunk, 0, topK)
	for _, s := range scores[:topK] {
		c := f.entries[s.idx].Chunk
		c.Score = s.score
		out = append(out, c)
	}
	return out, nil
}

// DeleteSource rebuilds the entry set without the given source and persists
// it. When nothing remains the snapshot is left for Drop to remove.
func (f *FlatIndex) DeleteSource(ctx context.Context, source string) (int, error) {
	kept := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		if e.Chunk.Source != source {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(f.entries) {
		return len(kept), nil
	}
	if len(kept) > 0 {
		if err := f.persist(ctx, kept); err != nil {
			return len(f.entries), err
		}
	}
	f.entries = kept
	return len(kept), nil
}

// Drop clears the in-memory entries and removes the snapshot.
func (f *FlatIndex) Drop(ctx context.Context) error {
	f.entries = nil
	if f.snap == nil {
		return nil
	}
	if err := f.snap.Remove(ctx); err != nil {
		return fmt.Errorf("flat index: remove snapshot: %w", err)
	}
	return nil
}

// Close is a no-op; the snapshot store opens its database per operation.
func (f *FlatIndex) Close() error { return nil }

// Len returns the number of entries held in memory.
func (f *FlatIndex) Len() int { return len(f.entries) }

// persist writes entries through the snapshotter, if any.
func (f *FlatIndex) persist(ctx context.Context, entries []Entry) error {
	if f.snap == nil {
		return nil
	}
	if err := f.snap.Save(ctx, entries); err != nil {
		return fmt.Errorf("flat index: save snapshot: %w", err)
	}
	return nil
}

// dimension returns the vector length of the stored entries, or 0 when empty.
func (f *FlatIndex) dimension() int {
	if len(f.entries) == 0 {
		return 0
	}
	return len(f.entries[0].Vector)
}

// cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
