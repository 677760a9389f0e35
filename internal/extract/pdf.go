package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxPDFPages bounds work on very long documents.
const maxPDFPages = 500

// PDFExtractor extracts page text from .pdf files. The PDF library panics on
// some malformed input, so every page is guarded.
type PDFExtractor struct{}

// ExtractPath implements PathExtractor.
func (e *PDFExtractor) ExtractPath(ctx context.Context, path string) (out string, err error) {
	defer func() {
		if v := recover(); v != nil {
			out, err = "", fmt.Errorf("pdf reader panic: %v", v)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := 0
	func() {
		defer func() { _ = recover() }()
		pages = reader.NumPage()
	}()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if ctx.Err() != nil {
			break
		}
		func() {
			defer func() { _ = recover() }()
			page := reader.Page(i)
			if page.V.IsNull() {
				return
			}
			for _, t := range page.Content().Text {
				b.WriteString(t.S)
			}
			b.WriteByte('\n')
		}()
	}
	return b.String(), nil
}
