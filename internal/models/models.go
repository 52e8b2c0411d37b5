package models

// Chunk is one bounded text window extracted from a source. Chunks are the
// unit of persistence (the chunks.json artifact) and the unit of embedding.
type Chunk struct {
	Text        string `json:"text"`
	Page        *int   `json:"page"` // 1-indexed; nil for non-paginated content
	URL         string `json:"url"`
	SourceType  string `json:"source_type"`
	SourceURL   string `json:"source_url,omitempty"`
	PDFURL      string `json:"pdf_url,omitempty"`
	LocalSource string `json:"local_source,omitempty"`
	ChunkIndex  int    `json:"chunk_index,omitempty"`
	Description string `json:"description,omitempty"`
}

// PageNumber returns the chunk's page, or 0 when the content is not paginated.
func (c *Chunk) PageNumber() int {
	if c.Page == nil {
		return 0
	}
	return *c.Page
}

// RecordMetadata is the metadata stored alongside an embedding. The original
// text rides along because the vector index does not retain source text.
type RecordMetadata struct {
	Text        string `json:"text"`
	URL         string `json:"url"`
	Page        int    `json:"page"`
	SourceType  string `json:"source_type"`
	SourceURL   string `json:"source_url,omitempty"`
	Description string `json:"description,omitempty"`
	LocalSource string `json:"local_source,omitempty"`
	PDFURL      string `json:"pdf_url,omitempty"`
}

// VectorRecord pairs a chunk with its embedding. The ID is derived
// deterministically from the chunk's position, page and a content hash so
// that re-runs upsert the same datapoints instead of duplicating them.
type VectorRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Metadata  RecordMetadata `json:"embedding_metadata"`
}

// QueryResult is one retrieved neighbor, ranked by score (best first).
type QueryResult struct {
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata"`
	Score       float32           `json:"score"`
	DatapointID string            `json:"datapoint_id"`
}

// QueryResponse is the query entry point's externally observable contract:
// a nullable generated answer plus the ranked source chunks. Sources are
// populated even when answer generation fails.
type QueryResponse struct {
	Answer  *string       `json:"answer"`
	Sources []QueryResult `json:"sources"`
}
