// Package ingestion turns an uploaded file into chunks ready for indexing.
// It detects the file format from the extension, extracts text (per page for
// PDFs), and splits it into fixed-size overlapping character windows, each
// tagged with the uploaded filename as its source.
// No network calls are made here; embedding happens in the knowledge store.
package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default chunking parameters, measured in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Metadata keys set on every chunk.
const (
	MetaPage       = "page"
	MetaChunkIndex = "chunk_index"
	MetaFormat     = "format"
)

// chunkNamespace seeds the deterministic UUIDv5 chunk identifiers.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docqa/chunk"))

// Config holds the configuration for the document loader.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1000 if zero or negative.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Negative values become 0; values >= ChunkSize become ChunkSize/10.
	ChunkOverlap int
}

// Loader converts files into chunks. It is stateless and safe for concurrent use.
type Loader struct {
	// cfg holds the resolved loader configuration.
	cfg Config
}

// NewLoader constructs a Loader, normalising cfg. A nil cfg uses the defaults.
func NewLoader(cfg *Config) *Loader {
	c := Config{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 10
	}
	return &Loader{cfg: c}
}

// Config returns the resolved configuration.
func (l *Loader) Config() Config { return l.cfg }

// Process loads the file at path and returns its chunks. Each chunk's Source
// is the file's base name. Unsupported extensions fail with
// ErrUnsupportedFormat before the file is opened; files without extractable
// text fail with ErrNoContent.
func (l *Loader) Process(ctx context.Context, path string) ([]rag.Chunk, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var segs []segment
	switch format {
	case FormatPDF:
		segs, err = readPDF(ctx, path)
	case FormatText:
		segs, err = readText(path)
	}
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	var chunks []rag.Chunk
	for _, seg := range segs {
		for _, text := range l.split(seg.text) {
			idx := len(chunks)
			meta := map[string]string{
				MetaChunkIndex: strconv.Itoa(idx),
				MetaFormat:     string(format),
			}
			if seg.page > 0 {
				meta[MetaPage] = strconv.Itoa(seg.page)
			}
			chunks = append(chunks, rag.Chunk{
				ID:       chunkID(source, seg.page, idx),
				Content:  text,
				Source:   source,
				Metadata: meta,
			})
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingestion: %s: %w", source, ErrNoContent)
	}
	return chunks, nil
}

// split breaks text into windows of cfg.ChunkSize characters, each starting
// ChunkSize-ChunkOverlap characters after the previous one, so adjacent
// chunks share exactly ChunkOverlap characters. Only the last chunk may be
// shorter than ChunkSize.
func (l *Loader) split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	size := l.cfg.ChunkSize
	step := size - l.cfg.ChunkOverlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// chunkID generates a deterministic UUID for a chunk from its source
// filename, page, and position. Qdrant requires UUID or integer point IDs.
func chunkID(source string, page, index int) string {
	return uuid.NewSHA1(chunkNamespace, fmt.Appendf(nil, "%s#%d#%d", source, page, index)).String()
}
