package ingestion

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// segment is a unit of extracted text before chunking: a whole text file or
// a single PDF page.
type segment struct {
	// text is the extracted text.
	text string
	// page is the 1-based PDF page number, or 0 for non-paged formats.
	page int
}

// readText reads a plain-text file as a single segment. Invalid UTF-8 byte
// sequences are replaced with U+FFFD.
func readText(path string) ([]segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", path, err)
	}
	return []segment{{text: strings.ToValidUTF8(string(data), "\uFFFD")}}, nil
}

// readPDF extracts the plain text of every non-empty page of a PDF.
func readPDF(ctx context.Context, path string) (segs []segment, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			segs, err = nil, fmt.Errorf("ingestion: parse pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open pdf %s: %w", path, err)
	}
	defer f.Close()

	total := r.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("ingestion: extract page %d of %s: %w", i, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		segs = append(segs, segment{text: text, page: i})
	}
	return segs, nil
}
