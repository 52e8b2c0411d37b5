package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/asaifulas/ragcrawler/internal/source"
)

// extractLocal reads a file from disk. PDFs keep their page structure,
// plain text and markdown become a single unit, and anything else goes
// through docconv.
func (e *Extractor) extractLocal(ctx context.Context, src source.Descriptor) ([]Unit, error) {
	data, err := os.ReadFile(src.Location)
	if err != nil {
		return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
	}

	var units []Unit
	switch strings.ToLower(filepath.Ext(src.Location)) {
	case ".pdf":
		units, err = pdfPageUnits(data, src.Location, e.maxPDFPages)
		if err != nil {
			return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: err}
		}
	case ".txt", ".md":
		if text := strings.TrimSpace(string(data)); text != "" {
			units = []Unit{{Text: text}}
		}
	default:
		res, err := docconv.Convert(bytes.NewReader(data), docconv.MimeTypeByExtension(src.Location), true)
		if err != nil {
			return nil, &ExtractionError{Kind: src.Kind, Location: src.Location, Err: fmt.Errorf("docconv: %w", err)}
		}
		if text := strings.TrimSpace(res.Body); text != "" {
			units = []Unit{{Text: text}}
		}
	}

	for i := range units {
		units[i].LocalSource = src.Location
		// SourceURL lets a local copy of a published document keep pointing
		// at its canonical location.
		units[i].URL = src.SourceURL
	}
	return units, nil
}
