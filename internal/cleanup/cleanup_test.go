package cleanup

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// stubEmbedder maps each text to a deterministic 8-dim vector.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 8)
		for _, w := range strings.Fields(t) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%8]++
		}
		out[i] = v
	}
	return out, nil
}

// countingResetter runs purge and counts calls.
type countingResetter struct {
	calls atomic.Int32
	err   error
}

func (c *countingResetter) Reset(_ context.Context, purge func() error) error {
	c.calls.Add(1)
	if c.err != nil {
		return c.err
	}
	return purge()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func newTestService(t *testing.T, r Resetter, interval time.Duration) (*Service, string, string, *prometheus.Registry) {
	t.Helper()
	root := t.TempDir()
	upload := filepath.Join(root, "data")
	index := filepath.Join(root, "vector_store")
	reg := prometheus.NewRegistry()
	s, err := New(&Config{
		UploadDir:  upload,
		IndexDir:   index,
		Store:      r,
		Interval:   interval,
		Registerer: reg,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, upload, index, reg
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Errorf("%s not empty: %d entries", dir, len(entries))
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "docqa_cleanup_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNew_Validates(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{IndexDir: "x", Store: &countingResetter{}}); err == nil {
		t.Error("expected error for missing UploadDir")
	}
	if _, err := New(&Config{UploadDir: "x", IndexDir: "y"}); err == nil {
		t.Error("expected error for nil Store")
	}
}

func TestResetNow_WipesDirectories(t *testing.T) {
	t.Parallel()

	s, upload, index, reg := newTestService(t, &countingResetter{}, 0)
	writeFile(t, filepath.Join(upload, "a.pdf"), "pdf")
	writeFile(t, filepath.Join(upload, "nested", "b.txt"), "txt")
	writeFile(t, filepath.Join(index, "index.db"), "db")

	if err := s.ResetNow(context.Background()); err != nil {
		t.Fatalf("ResetNow: %v", err)
	}
	assertEmptyDir(t, upload)
	assertEmptyDir(t, index)

	if got := counterValue(t, reg, "ok"); got != 1 {
		t.Errorf("ok counter = %v, want 1", got)
	}
}

func TestResetNow_Idempotent(t *testing.T) {
	t.Parallel()

	s, upload, index, reg := newTestService(t, &countingResetter{}, 0)
	for i := 0; i < 2; i++ {
		if err := s.ResetNow(context.Background()); err != nil {
			t.Fatalf("ResetNow #%d: %v", i+1, err)
		}
	}
	assertEmptyDir(t, upload)
	assertEmptyDir(t, index)
	if got := counterValue(t, reg, "ok"); got != 2 {
		t.Errorf("ok counter = %v, want 2", got)
	}
}

func TestResetNow_ErrorCounted(t *testing.T) {
	t.Parallel()

	boom := errors.New("drop failed")
	s, _, _, reg := newTestService(t, &countingResetter{err: boom}, 0)

	if err := s.ResetNow(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if got := counterValue(t, reg, "error"); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	t.Parallel()

	r := &countingResetter{}
	s, _, _, _ := newTestService(t, r, 0)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return with a disabled interval")
	}
	if r.calls.Load() != 0 {
		t.Error("no reset expected when disabled")
	}
}

func TestRun_TicksAndSurvivesErrors(t *testing.T) {
	t.Parallel()

	r := &countingResetter{err: errors.New("always fails")}
	s, _, _, _ := newTestService(t, r, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for r.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 resets, got %d", r.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestResetNow_EmptiesKnowledgeStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	upload := filepath.Join(root, "data")
	index := filepath.Join(root, "vector_store")

	snap := store.NewSnapshotStore(index)
	kb, err := rag.NewKnowledgeStore(stubEmbedder{}, rag.NewFlatIndex(snap))
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(upload, "notes.txt"), "hello world")
	if _, err := kb.Insert(ctx, []rag.Chunk{{ID: "1", Content: "hello world", Source: "notes.txt"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := os.Stat(snap.Path()); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	s, err := New(&Config{
		UploadDir:  upload,
		IndexDir:   index,
		Store:      kb,
		Registerer: prometheus.NewRegistry(),
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.ResetNow(ctx); err != nil {
		t.Fatalf("ResetNow: %v", err)
	}

	if kb.Populated() {
		t.Error("store should be EMPTY after reset")
	}
	if _, err := kb.Query(ctx, "hello", 3); !errors.Is(err, rag.ErrEmptyStore) {
		t.Errorf("expected ErrEmptyStore after reset, got %v", err)
	}
	assertEmptyDir(t, upload)
	assertEmptyDir(t, index)

	// A fresh store over the same directory finds nothing to restore.
	fresh, _ := rag.NewKnowledgeStore(stubEmbedder{}, rag.NewFlatIndex(store.NewSnapshotStore(index)))
	if err := fresh.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if fresh.Populated() {
		t.Error("reloaded store should be EMPTY")
	}
}

func TestResetNow_AuditsTrigger(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	s, err := New(&Config{
		UploadDir:  filepath.Join(t.TempDir(), "data"),
		IndexDir:   filepath.Join(t.TempDir(), "vector_store"),
		Store:      &countingResetter{},
		Registerer: prometheus.NewRegistry(),
		Logger:     slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.ResetNow(WithTrigger(context.Background(), TriggerHTTP)); err != nil {
		t.Fatalf("ResetNow: %v", err)
	}
	if err := s.ResetNow(context.Background()); err != nil {
		t.Fatalf("ResetNow: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"trigger":"http"`) {
		t.Errorf("audit record missing http trigger: %s", out)
	}
	if !strings.Contains(out, `"trigger":"manual"`) {
		t.Errorf("audit record missing default trigger: %s", out)
	}
}
