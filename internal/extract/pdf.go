package extract

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfPageUnits extracts one unit per page. A page that cannot be read
// produces an empty unit so page numbering stays aligned with the document;
// only a document that cannot be opened at all is an error.
func pdfPageUnits(data []byte, location string, maxPages int) ([]Unit, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF %s: %w", location, err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("PDF %s has no pages", location)
	}
	if maxPages > 0 && total > maxPages {
		log.Printf("PDF %s has %d pages, extracting the first %d", location, total, maxPages)
		total = maxPages
	}

	units := make([]Unit, 0, total)
	for i := 1; i <= total; i++ {
		page := i
		text, err := pageText(reader, page)
		if err != nil {
			log.Printf("PDF %s page %d unreadable: %v", location, page, err)
			text = ""
		}
		units = append(units, Unit{Text: strings.TrimSpace(text), Page: &page})
	}
	return units, nil
}

// pageText reads one page's plain text. The parser panics on some malformed
// content streams, so the recover turns that into a per-page error.
func pageText(reader *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content stream parse: %v", r)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page object is null")
	}
	return page.GetPlainText(nil)
}
