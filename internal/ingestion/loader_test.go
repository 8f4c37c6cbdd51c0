package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"report.pdf", FormatPDF, false},
		{"REPORT.PDF", FormatPDF, false},
		{"notes.txt", FormatText, false},
		{"/tmp/dir.with.dots/notes.TxT", FormatText, false},
		{"resume.docx", "", true},
		{"README", "", true},
		{"archive.tar.gz", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			got, err := DetectFormat(tc.path)
			if tc.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("DetectFormat(%q) error = %v, want ErrUnsupportedFormat", tc.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectFormat(%q) unexpected error: %v", tc.path, err)
			}
			if got != tc.want {
				t.Errorf("DetectFormat(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

func TestNewLoader_Normalises(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         *Config
		wantSize    int
		wantOverlap int
	}{
		{"nil uses defaults", nil, 1000, 100},
		{"zero size", &Config{ChunkSize: 0, ChunkOverlap: 50}, 1000, 50},
		{"negative overlap", &Config{ChunkSize: 200, ChunkOverlap: -5}, 200, 0},
		{"overlap >= size", &Config{ChunkSize: 200, ChunkOverlap: 200}, 200, 20},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := NewLoader(tc.cfg).Config()
			if got.ChunkSize != tc.wantSize || got.ChunkOverlap != tc.wantOverlap {
				t.Errorf("got size=%d overlap=%d, want size=%d overlap=%d",
					got.ChunkSize, got.ChunkOverlap, tc.wantSize, tc.wantOverlap)
			}
		})
	}
}

func TestSplit_BoundsAndOverlap(t *testing.T) {
	t.Parallel()

	l := NewLoader(&Config{ChunkSize: 1000, ChunkOverlap: 100})

	var b strings.Builder
	for i := 0; b.Len() < 3500; i++ {
		b.WriteString("word")
		b.WriteByte(byte('a' + i%26))
		b.WriteByte(' ')
	}
	text := strings.TrimSpace(b.String())

	chunks := l.split(text)
	if len(chunks) < 4 {
		t.Fatalf("expected at least 4 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 1000 {
			t.Errorf("chunk %d has %d characters, max 1000", i, n)
		}
		if i < len(chunks)-1 && utf8.RuneCountInString(c) != 1000 {
			t.Errorf("non-final chunk %d has %d characters, want 1000", i, utf8.RuneCountInString(c))
		}
	}
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-100:]
		head := chunks[i+1][:100]
		if tail != head {
			t.Errorf("chunks %d/%d do not share 100-character overlap", i, i+1)
		}
	}
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	t.Parallel()

	l := NewLoader(&Config{ChunkSize: 10, ChunkOverlap: 2})
	chunks := l.split(strings.Repeat("é", 25))

	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 10 {
			t.Errorf("chunk %d has %d characters, max 10", i, n)
		}
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
	// 25 chars, step 8: windows at 0, 8, 16 (16..25 reaches the end).
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(chunks))
	}
}

func TestSplit_ShortAndEmpty(t *testing.T) {
	t.Parallel()

	l := NewLoader(nil)
	if got := l.split("   \n\t "); len(got) != 0 {
		t.Errorf("expected no chunks for whitespace, got %d", len(got))
	}
	got := l.split("  short text  ")
	if len(got) != 1 || got[0] != "short text" {
		t.Errorf("expected single trimmed chunk, got %q", got)
	}
}

func TestProcess_TextFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	body := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	chunks, err := NewLoader(nil).Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	seen := map[string]bool{}
	for i, c := range chunks {
		if c.Source != "notes.txt" {
			t.Errorf("chunk %d source = %q, want notes.txt", i, c.Source)
		}
		if c.Metadata[MetaFormat] != string(FormatText) {
			t.Errorf("chunk %d format = %q", i, c.Metadata[MetaFormat])
		}
		if _, ok := c.Metadata[MetaPage]; ok {
			t.Errorf("chunk %d: text chunks must not carry a page", i)
		}
		if seen[c.ID] {
			t.Errorf("duplicate chunk ID %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestProcess_DeterministicIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "same.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil)
	a, err := l.Process(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.Process(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if a[0].ID != b[0].ID {
		t.Errorf("IDs differ across runs: %s vs %s", a[0].ID, b[0].ID)
	}
}

func TestProcess_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	// The file does not exist: format detection must fail before any read.
	_, err := NewLoader(nil).Process(context.Background(), filepath.Join(t.TempDir(), "slides.pptx"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestProcess_EmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("  \n "), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewLoader(nil).Process(context.Background(), path)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestProcess_CorruptPDF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewLoader(nil).Process(context.Background(), path); err == nil {
		t.Fatal("expected error for corrupt PDF")
	}
}

func TestProcess_InvalidUTF8Replaced(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "latin1.txt")
	if err := os.WriteFile(path, []byte("caf\xe9 menu"), 0o644); err != nil {
		t.Fatal(err)
	}

	chunks, err := NewLoader(nil).Process(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(chunks[0].Content) {
		t.Error("chunk content must be valid UTF-8")
	}
}
