// Package extract turns raw PDF bytes into normalized per-page text.
package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/paperchat-ai/paperchat/internal/core"
)

var _ core.Extractor = (*PDFExtractor)(nil)

// PDFExtractor extracts page text with the pure-Go pdf parser.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractPages returns one normalized text per page and the total page count.
// Zero pages is a valid result; an unreadable PDF fails with an
// *core.ExtractionError.
func (e *PDFExtractor) ExtractPages(data []byte) (pages []string, total int, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if rec := recover(); rec != nil {
			pages, total = nil, 0
			err = &core.ExtractionError{Err: fmt.Errorf("malformed pdf: %v", rec)}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, &core.ExtractionError{Err: err}
	}

	total = r.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, 0, &core.ExtractionError{Err: fmt.Errorf("page %d: %w", i, err)}
		}
		pages = append(pages, NormalizeMath(sanitize(text)))
	}
	return pages, total, nil
}
