package ingestion

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies how a file's text is extracted.
type Format string

const (
	// FormatPDF is a PDF document, parsed page by page.
	FormatPDF Format = "pdf"
	// FormatText is a plain-text document, read whole.
	FormatText Format = "text"
)

var (
	// ErrUnsupportedFormat is returned for files whose extension has no loader.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoContent is returned when a supported file yields no extractable text.
	ErrNoContent = errors.New("no extractable text")
)

// extensionFormats maps lower-cased file extensions to their Format.
var extensionFormats = map[string]Format{
	".pdf": FormatPDF,
	".txt": FormatText,
}

// DetectFormat returns the Format for path based on its extension, compared
// case-insensitively. Any other extension fails with ErrUnsupportedFormat.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensionFormats[ext]; ok {
		return f, nil
	}
	if ext == "" {
		return "", fmt.Errorf("ingestion: %q has no extension: %w (supported: .pdf, .txt)", filepath.Base(path), ErrUnsupportedFormat)
	}
	return "", fmt.Errorf("ingestion: %q: %w (supported: .pdf, .txt)", ext, ErrUnsupportedFormat)
}
