package rag

import (
	"context"
	"math"
	"testing"
)

func entry(source string, vec ...float32) Entry {
	return Entry{Chunk: Chunk{ID: source, Source: source, Content: source}, Vector: vec}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := cosine(tc.a, tc.b)
			if math.Abs(float64(got-tc.want)) > 1e-6 {
				t.Errorf("cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestFlatIndex_SearchOrdersByScore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := NewFlatIndex(nil)
	if _, err := f.Add(ctx, []Entry{
		entry("far", 0, 1),
		entry("near", 1, 0.1),
		entry("mid", 1, 1),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := f.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Source != "near" || got[1].Source != "mid" {
		t.Errorf("order = [%s %s], want [near mid]", got[0].Source, got[1].Source)
	}
	if got[0].Score <= 0 {
		t.Errorf("expected positive score, got %v", got[0].Score)
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := NewFlatIndex(nil)
	if _, err := f.Add(ctx, []Entry{entry("a", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Add(ctx, []Entry{entry("b", 1, 0, 0)}); err == nil {
		t.Error("expected dimension mismatch on Add")
	}
	if _, err := f.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected dimension mismatch on Search")
	}
	if f.Len() != 1 {
		t.Errorf("failed Add must not mutate index, Len = %d", f.Len())
	}
}

func TestFlatIndex_DeleteSourcePersists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	snap := &memSnapshot{}
	f := NewFlatIndex(snap)
	if _, err := f.Add(ctx, []Entry{entry("a", 1, 0), entry("b", 0, 1), entry("a", 1, 1)}); err != nil {
		t.Fatal(err)
	}
	savesBefore := snap.saves

	remaining, err := f.DeleteSource(ctx, "a")
	if err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}
	if snap.saves != savesBefore+1 {
		t.Errorf("expected one snapshot rewrite, got %d", snap.saves-savesBefore)
	}

	// Nothing matches: no rewrite.
	if _, err := f.DeleteSource(ctx, "zzz"); err != nil {
		t.Fatal(err)
	}
	if snap.saves != savesBefore+1 {
		t.Error("no-op delete must not rewrite the snapshot")
	}
}

func TestFlatIndex_DropRemovesSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	snap := &memSnapshot{}
	f := NewFlatIndex(snap)
	if _, err := f.Add(ctx, []Entry{entry("a", 1)}); err != nil {
		t.Fatal(err)
	}
	if err := f.Drop(ctx); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if f.Len() != 0 || snap.saved {
		t.Error("Drop must clear memory and snapshot")
	}

	n, err := f.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Load after Drop = %d, want 0", n)
	}
}

func TestFlatIndex_SearchEmpty(t *testing.T) {
	t.Parallel()

	got, err := NewFlatIndex(nil).Search(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}
