package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/asaifulas/ragcrawler/internal/models"
)

// Artifact file names inside the output directory.
const (
	ChunksFile  = "chunks.json"
	PDFURLsFile = "pdf_urls.json"
)

// SaveChunks writes the crawl's chunks to <dir>/chunks.json. The file is the
// pipeline's restart point: embedding and upload can be re-run from it
// without re-crawling.
func SaveChunks(dir string, chunks []models.Chunk) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, ChunksFile)
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal chunks: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// LoadChunks reads a previously saved chunks file.
func LoadChunks(path string) ([]models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunks file: %w", err)
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse chunks file %s: %w", path, err)
	}
	return chunks, nil
}

// SavePDFURLs writes the resolved PDF URL list for url-only runs.
func SavePDFURLs(dir string, urls []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, PDFURLsFile)
	payload := struct {
		TotalURLs int      `json:"total_urls"`
		URLs      []string `json:"urls"`
	}{TotalURLs: len(urls), URLs: urls}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal pdf urls: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
