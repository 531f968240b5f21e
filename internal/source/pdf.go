package source

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/quarrylabs/quarry/internal/domain"
)

// LoadPDF extracts per-page text from a PDF. Pages that yield no text
// (scanned images, extraction failures) are skipped rather than failing
// the document; a PDF with no extractable text at all is an error.
func LoadPDF(path string) (domain.RawDocument, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var pages []domain.Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}
	if len(pages) == 0 {
		return domain.RawDocument{}, fmt.Errorf("no extractable text in %s", path)
	}

	return domain.RawDocument{
		ID:    path,
		Title: docTitle(path),
		Path:  path,
		Pages: pages,
	}, nil
}
